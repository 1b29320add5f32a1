package parser

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"flow-classifier/internal/model"
)

type flowFile struct {
	Flows []model.FlowDef `yaml:"flows"`
}

// ParseFlowYAML reads a document of the form
//
//	flows:
//	  - name: web
//	    priority: 100
//	    ref: backend-a
//	    protocols: [tcp]
//	    dstPorts: "80, 443"
//	    dstAddrs: [10.0.0.0/8]
func ParseFlowYAML(r io.Reader) ([]model.FlowDef, error) {
	var f flowFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("error decoding flow file: %w", err)
	}
	for i, def := range f.Flows {
		if def.Name == "" {
			return nil, fmt.Errorf("flow #%d has no name", i+1)
		}
	}
	return f.Flows, nil
}
