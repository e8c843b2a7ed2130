// Package models provides the built-in unit operations exercised by
// spec §8's end-to-end scenarios: Source, Sink, Mixer, Splitter.
//
// ModelInfo and Registry mirror registry.go's SystemRegistry: a
// centralized, ID-keyed metadata table so a script front-end or UI can
// list available unit types without a type switch scattered through
// the codebase.
package models

import "github.com/pthm-cable/dyssol-go/unit"

// ModelInfo describes one built-in unit-model type for discovery by
// cmd/dyssolctl and friends.
type ModelInfo struct {
	ID          string
	Name        string
	Description string
}

// Factory constructs a fresh Unit instance for a given key/name.
type Factory func(key, name string) unit.Unit

// Registry holds metadata plus a constructor for every built-in model
// type, keyed by ID — the same registration shape as
// systems.SystemRegistry.
type Registry struct {
	infos     []ModelInfo
	byID      map[string]ModelInfo
	factories map[string]Factory
}

// NewRegistry creates a registry preloaded with the built-in models.
func NewRegistry() *Registry {
	r := &Registry{
		byID:      make(map[string]ModelInfo),
		factories: make(map[string]Factory),
	}
	r.registerDefaults()
	return r
}

func (r *Registry) registerDefaults() {
	r.Register(ModelInfo{ID: "source", Name: "Source", Description: "Emits a constant or time-dependent feed stream"},
		func(key, name string) unit.Unit { return NewSource(key, name) })
	r.Register(ModelInfo{ID: "sink", Name: "Sink", Description: "Consumes an inlet stream, recording nothing back into the flowsheet"},
		func(key, name string) unit.Unit { return NewSink(key, name) })
	r.Register(ModelInfo{ID: "mixer", Name: "Mixer", Description: "Combines any number of inlet streams by mass-weighted mixing"},
		func(key, name string) unit.Unit { return NewMixer(key, name) })
	r.Register(ModelInfo{ID: "splitter", Name: "Splitter", Description: "Splits one inlet stream into two outlets by a mass fraction"},
		func(key, name string) unit.Unit { return NewSplitter(key, name) })
}

// Register adds (or replaces) a model type.
func (r *Registry) Register(info ModelInfo, factory Factory) {
	if _, exists := r.byID[info.ID]; !exists {
		r.infos = append(r.infos, info)
	}
	r.byID[info.ID] = info
	r.factories[info.ID] = factory
}

// Get returns metadata for a model type ID.
func (r *Registry) Get(id string) (ModelInfo, bool) {
	info, ok := r.byID[id]
	return info, ok
}

// All returns every registered model's metadata, in registration order.
func (r *Registry) All() []ModelInfo {
	return append([]ModelInfo(nil), r.infos...)
}

// Instantiate constructs a new Unit of the named model type.
func (r *Registry) Instantiate(modelID, key, name string) (unit.Unit, bool) {
	f, ok := r.factories[modelID]
	if !ok {
		return nil, false
	}
	return f(key, name), true
}
