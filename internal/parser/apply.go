package parser

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"flow-classifier/internal/engine"
	"flow-classifier/internal/model"
)

// Apply defines every enabled flow in table, in order. It stops at the first
// definition the table rejects; flows defined before it stay in place.
func Apply(table *engine.Table[model.Target], defs []model.FlowDef) (int, error) {
	applied := 0
	for _, def := range defs {
		if def.Disabled {
			continue
		}
		ref := model.Target{Flow: def.Name, Ref: def.Ref}
		if err := table.Define(def.Name, def.Priority, ref, engine.SpecFromDef(def)); err != nil {
			return applied, err
		}
		applied++
	}
	return applied, nil
}

// LoadFlowFile reads flow definitions from a .yaml/.yml file or, for any
// other extension, a stanza config file.
func LoadFlowFile(path string) ([]model.FlowDef, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseFlowYAML(file)
	default:
		return parseFlowConf(file)
	}
}

func parseFlowConf(r io.Reader) ([]model.FlowDef, error) {
	p := NewFlowConfParser(r)
	if err := p.Parse(); err != nil {
		return nil, err
	}
	return p.Flows, nil
}
