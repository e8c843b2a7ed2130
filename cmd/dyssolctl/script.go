package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// UnitParamOverride is one UNIT_PARAMETER line: set unitKey's paramKey to
// value before the run starts.
type UnitParamOverride struct {
	UnitKey, ParamKey string
	Value             float64
}

// Script is the parsed form of a dyssolctl command file: a line-oriented
// key-value format modeled on the original console front-end's
// ConfigFileParser ("SOURCE_FILE ...", "SIMULATION_TIME ...", one
// directive per line, "; " or "#" prefixed lines are comments).
type Script struct {
	SourceFile     string
	ResultFile     string
	SimulationTime float64
	AbsTol         float64
	RelTol         float64
	UnitParams     []UnitParamOverride
	ExportStreams  []string
}

// ParseScript reads a script file from path.
func ParseScript(path string) (*Script, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("dyssolctl: opening script %s: %w", path, err)
	}
	defer f.Close()

	s := &Script{}
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ";") || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		key := strings.ToUpper(fields[0])
		rest := fields[1:]

		var err error
		switch key {
		case "SOURCE_FILE":
			s.SourceFile = strings.Join(rest, " ")
		case "RESULT_FILE":
			s.ResultFile = strings.Join(rest, " ")
		case "SIMULATION_TIME":
			s.SimulationTime, err = parseFloatArg(rest, lineNo)
		case "ABSOLUTE_TOLERANCE":
			s.AbsTol, err = parseFloatArg(rest, lineNo)
		case "RELATIVE_TOLERANCE":
			s.RelTol, err = parseFloatArg(rest, lineNo)
		case "UNIT_PARAMETER":
			if len(rest) != 3 {
				return nil, fmt.Errorf("dyssolctl: line %d: UNIT_PARAMETER needs unit, parameter, value", lineNo)
			}
			v, perr := strconv.ParseFloat(rest[2], 64)
			if perr != nil {
				return nil, fmt.Errorf("dyssolctl: line %d: bad value %q: %w", lineNo, rest[2], perr)
			}
			s.UnitParams = append(s.UnitParams, UnitParamOverride{UnitKey: rest[0], ParamKey: rest[1], Value: v})
		case "EXPORT_STREAM":
			if len(rest) != 1 {
				return nil, fmt.Errorf("dyssolctl: line %d: EXPORT_STREAM needs exactly one stream key", lineNo)
			}
			s.ExportStreams = append(s.ExportStreams, rest[0])
		default:
			fmt.Fprintf(os.Stderr, "dyssolctl: warning: line %d: unknown directive %q\n", lineNo, fields[0])
			continue
		}
		if err != nil {
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("dyssolctl: reading script %s: %w", path, err)
	}
	return s, nil
}

func parseFloatArg(rest []string, lineNo int) (float64, error) {
	if len(rest) != 1 {
		return 0, fmt.Errorf("dyssolctl: line %d: expected exactly one value", lineNo)
	}
	v, err := strconv.ParseFloat(rest[0], 64)
	if err != nil {
		return 0, fmt.Errorf("dyssolctl: line %d: bad value %q: %w", lineNo, rest[0], err)
	}
	return v, nil
}
