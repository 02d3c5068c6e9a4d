// Copyright (c) 2026 StreamKit Authors
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package pipelinecore compiles a declarative pipeline description
// (YAML, two accepted shapes) into a validated DAG plan the engine can
// instantiate. See spec.md §4.3 for the full compilation contract.
package pipelinecore

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Mode selects the pipeline's execution mode.
type Mode string

const (
	ModeOneshot Mode = "oneshot"
	ModeDynamic Mode = "dynamic"
)

// ConnectionMode selects a connection's backpressure behavior.
type ConnectionMode string

const (
	ModeReliable   ConnectionMode = "reliable"
	ModeBestEffort ConnectionMode = "best_effort"
)

// Document is the top-level pipeline description, accepted in one of
// two mutually exclusive shapes: Steps (linear) or Nodes (DAG).
type Document struct {
	Name        string              `yaml:"name,omitempty"`
	Description string              `yaml:"description,omitempty"`
	Mode        Mode                `yaml:"mode"`
	Steps       []Step              `yaml:"steps,omitempty"`
	Nodes       map[string]NodeSpec `yaml:"nodes,omitempty"`
}

// Step is one entry of the linear shape.
type Step struct {
	Kind   string    `yaml:"kind"`
	Params yaml.Node `yaml:"params,omitempty"`
}

// NodeSpec is one entry of the DAG shape.
type NodeSpec struct {
	Kind   string    `yaml:"kind"`
	Params yaml.Node `yaml:"params,omitempty"`
	Needs  NeedsList `yaml:"needs,omitempty"`
}

// NeedsEntry names one dependency label and the connection mode to
// wire it with.
type NeedsEntry struct {
	Node string
	Mode ConnectionMode
}

// NeedsList is a dependency label, a list of labels, or a list mixing
// plain labels and {node, mode} objects.
type NeedsList []NeedsEntry

// UnmarshalYAML accepts a bare string, a list of strings/objects, or a
// single {node, mode} object, per spec.md §6.
func (n *NeedsList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var s string
		if err := value.Decode(&s); err != nil {
			return err
		}
		*n = NeedsList{{Node: s, Mode: ModeReliable}}
		return nil
	case yaml.MappingNode:
		entry, err := decodeNeedsEntry(value)
		if err != nil {
			return err
		}
		*n = NeedsList{entry}
		return nil
	case yaml.SequenceNode:
		out := make(NeedsList, 0, len(value.Content))
		for _, item := range value.Content {
			switch item.Kind {
			case yaml.ScalarNode:
				var s string
				if err := item.Decode(&s); err != nil {
					return err
				}
				out = append(out, NeedsEntry{Node: s, Mode: ModeReliable})
			case yaml.MappingNode:
				entry, err := decodeNeedsEntry(item)
				if err != nil {
					return err
				}
				out = append(out, entry)
			default:
				return fmt.Errorf("needs: unsupported list entry kind %v", item.Kind)
			}
		}
		*n = out
		return nil
	default:
		return fmt.Errorf("needs: unsupported node kind %v", value.Kind)
	}
}

func decodeNeedsEntry(value *yaml.Node) (NeedsEntry, error) {
	var raw struct {
		Node string         `yaml:"node"`
		Mode ConnectionMode `yaml:"mode"`
	}
	if err := value.Decode(&raw); err != nil {
		return NeedsEntry{}, err
	}
	if raw.Node == "" {
		return NeedsEntry{}, fmt.Errorf("needs: object entry missing required 'node' field")
	}
	if raw.Mode == "" {
		raw.Mode = ModeReliable
	}
	return NeedsEntry{Node: raw.Node, Mode: raw.Mode}, nil
}

// paramsToJSON converts a parsed YAML params node into a JSON document
// node kind constructors can json.Unmarshal directly, avoiding a
// bespoke YAML-native param representation.
func paramsToJSON(n yaml.Node) (json.RawMessage, error) {
	if n.Kind == 0 {
		return json.RawMessage("null"), nil
	}
	var v interface{}
	if err := n.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode params: %w", err)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal params to json: %w", err)
	}
	return data, nil
}

// ParseDocument parses a pipeline description from YAML bytes.
func ParseDocument(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &CompileError{Path: "", Reason: "invalid YAML: " + err.Error()}
	}
	if doc.Mode != ModeOneshot && doc.Mode != ModeDynamic {
		return nil, &CompileError{Path: "mode", Reason: fmt.Sprintf("mode must be %q or %q, got %q", ModeOneshot, ModeDynamic, doc.Mode)}
	}
	hasSteps := len(doc.Steps) > 0
	hasNodes := len(doc.Nodes) > 0
	if hasSteps == hasNodes {
		return nil, &CompileError{Path: "", Reason: "exactly one of 'steps' or 'nodes' must be present"}
	}
	return &doc, nil
}
