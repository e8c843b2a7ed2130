// Package materials is a minimal stand-in for the materials-properties
// database (spec §6, out of scope as a full parser per spec §1): a
// read-only lookup of compound keys to CompoundProperties, each exposing
// scalar constants and temperature/pressure correlations evaluated on
// demand. Grounded on original_source/MaterialsDatabase/Correlation.cpp's
// coefficient-table-plus-evaluator shape.
package materials

import (
	"fmt"
	"math"
)

// CorrelationKind selects the evaluator used for a temperature/pressure-
// dependent property.
type CorrelationKind int

const (
	// Const ignores T, p and returns Coeffs[0].
	Const CorrelationKind = iota
	// LinearT evaluates Coeffs[0] + Coeffs[1]*T.
	LinearT
	// Antoine evaluates an Antoine-style vapour-pressure correlation:
	// p_sat = 10^(Coeffs[0] - Coeffs[1]/(T+Coeffs[2])).
	Antoine
)

// Correlation is a coefficient table plus the evaluator selected by Kind.
type Correlation struct {
	Kind   CorrelationKind
	Coeffs []float64
}

// Evaluate computes the correlation's value at (T, p). p is unused by the
// correlation kinds implemented here but kept in the signature since the
// spec's contract is GetCompound(key) -> properties evaluated at (T, p).
func (c Correlation) Evaluate(t, p float64) (float64, error) {
	switch c.Kind {
	case Const:
		if len(c.Coeffs) < 1 {
			return 0, fmt.Errorf("materials: const correlation needs 1 coefficient")
		}
		return c.Coeffs[0], nil
	case LinearT:
		if len(c.Coeffs) < 2 {
			return 0, fmt.Errorf("materials: linear-T correlation needs 2 coefficients")
		}
		return c.Coeffs[0] + c.Coeffs[1]*t, nil
	case Antoine:
		if len(c.Coeffs) < 3 {
			return 0, fmt.Errorf("materials: antoine correlation needs 3 coefficients")
		}
		a, b, cc := c.Coeffs[0], c.Coeffs[1], c.Coeffs[2]
		exp := a - b/(t+cc)
		return math.Pow(10, exp), nil
	default:
		return 0, fmt.Errorf("materials: unknown correlation kind %d", c.Kind)
	}
}

// CompoundProperties exposes named scalar constants and correlations for
// one compound, keyed by property name (e.g. "density", "heatCapacity",
// "vaporPressure").
type CompoundProperties struct {
	Key          string
	Name         string
	Constants    map[string]float64
	Correlations map[string]Correlation
}

// Constant returns a scalar constant by name.
func (c *CompoundProperties) Constant(name string) (float64, bool) {
	v, ok := c.Constants[name]
	return v, ok
}

// Evaluate evaluates a correlation by name at (T, p).
func (c *CompoundProperties) Evaluate(name string, t, p float64) (float64, error) {
	corr, ok := c.Correlations[name]
	if !ok {
		return 0, fmt.Errorf("materials: compound %s has no correlation %q", c.Key, name)
	}
	return corr.Evaluate(t, p)
}

// DB is the read-only compound lookup (spec §6 "Materials DB").
type DB struct {
	compounds map[string]*CompoundProperties
}

// NewDB builds a database from a set of compounds.
func NewDB(compounds ...*CompoundProperties) *DB {
	db := &DB{compounds: make(map[string]*CompoundProperties, len(compounds))}
	for _, c := range compounds {
		db.compounds[c.Key] = c
	}
	return db
}

// GetCompound looks up a compound by key.
func (db *DB) GetCompound(key string) (*CompoundProperties, bool) {
	c, ok := db.compounds[key]
	return c, ok
}

// Keys returns every registered compound key.
func (db *DB) Keys() []string {
	out := make([]string, 0, len(db.compounds))
	for k := range db.compounds {
		out = append(out, k)
	}
	return out
}
