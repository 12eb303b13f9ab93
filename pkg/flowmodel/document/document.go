// Package document implements Flowfile's portable graph format: a
// JSON-equivalent structure with top-level flow metadata plus ordered
// node and edge lists, and the legacy-filter-operator migration applied
// on load.
package document

import (
	"encoding/json"
	"fmt"

	"github.com/flowfile/flowfile/pkg/flowmodel"
	"github.com/flowfile/flowfile/pkg/nodekind"
	"gopkg.in/yaml.v3"
)

// NodeDoc is one node's on-disk representation.
type NodeDoc struct {
	ID          int64                  `json:"id" yaml:"id"`
	Kind        flowmodel.Kind         `json:"kind" yaml:"kind"`
	Settings    map[string]any         `json:"settings" yaml:"settings"`
	Inputs      []ConnectionDoc        `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	CacheFlag   bool                   `json:"cache_flag" yaml:"cache_flag"`
	Position    *flowmodel.Position    `json:"position,omitempty" yaml:"position,omitempty"`
	Description string                 `json:"description,omitempty" yaml:"description,omitempty"`
	Unknown     map[string]any         `json:"-" yaml:"-"`
}

// ConnectionDoc mirrors flowmodel.Connection for serialization.
type ConnectionDoc struct {
	SourceID int64             `json:"source_id" yaml:"source_id"`
	Label    flowmodel.InputLabel `json:"label" yaml:"label"`
}

// EdgeDoc is one edge's on-disk representation.
type EdgeDoc struct {
	Source int64             `json:"source" yaml:"source"`
	Target int64             `json:"target" yaml:"target"`
	Label  flowmodel.InputLabel `json:"label" yaml:"label"`
}

// Document is the top-level portable graph format.
type Document struct {
	FlowID   int64                  `json:"flow_id" yaml:"flow_id"`
	Name     string                 `json:"name" yaml:"name"`
	Settings flowmodel.FlowSettings `json:"settings" yaml:"settings"`
	Nodes    []NodeDoc              `json:"nodes" yaml:"nodes"`
	Edges    []EdgeDoc              `json:"edges" yaml:"edges"`

	// Unknown holds the top-level fields not recognized by this version,
	// as captured by Unmarshal, and is ignored semantically. Marshal and
	// MarshalYAML do not write it (or NodeDoc.Unknown) back out.
	Unknown map[string]any `json:"-" yaml:"-"`
}

// Marshal encodes doc as canonical JSON. Unknown fields held on the
// document or its nodes are not included in the output.
func Marshal(doc *Document) ([]byte, error) {
	return json.Marshal(doc)
}

// Unmarshal decodes JSON into a Document, preserving unrecognized
// top-level and per-node fields and migrating legacy filter settings.
func Unmarshal(data []byte, reg *nodekind.Registry) (*Document, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("document: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("document: %w", err)
	}
	doc.Unknown = extractUnknown(raw, "flow_id", "name", "settings", "nodes", "edges")

	var nodeRaws []map[string]json.RawMessage
	if err := json.Unmarshal(raw["nodes"], &nodeRaws); err == nil {
		for i := range doc.Nodes {
			if i < len(nodeRaws) {
				doc.Nodes[i].Unknown = extractUnknown(nodeRaws[i], "id", "kind", "settings", "inputs", "cache_flag", "position", "description")
			}
			migrateLegacySettings(&doc.Nodes[i])
		}
	}
	_ = reg
	return &doc, nil
}

func extractUnknown(raw map[string]json.RawMessage, known ...string) map[string]any {
	knownSet := make(map[string]bool, len(known))
	for _, k := range known {
		knownSet[k] = true
	}
	out := map[string]any{}
	for k, v := range raw {
		if knownSet[k] {
			continue
		}
		var val any
		if err := json.Unmarshal(v, &val); err == nil {
			out[k] = val
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// migrateLegacySettings rewrites legacy filter operator symbols and the
// old filter_value field name directly on the raw settings map, ahead
// of typed deserialization.
func migrateLegacySettings(n *NodeDoc) {
	if n.Kind != flowmodel.KindFilter || n.Settings == nil {
		return
	}
	if v, ok := n.Settings["filter_value"]; ok {
		if _, hasValue := n.Settings["value"]; !hasValue {
			n.Settings["value"] = v
		}
		delete(n.Settings, "filter_value")
	}
	if op, ok := n.Settings["operator"].(string); ok {
		if canon, err := nodekindMigrateOperator(op); err == nil {
			n.Settings["operator"] = string(canon)
		}
		// An unrecognized legacy operator is left as-is here; it
		// surfaces as a SettingsValidationError once the typed
		// settings are validated.
	}
}

// nodekindMigrateOperator is a thin indirection so this file reads
// naturally; it just forwards to nodekind.MigrateLegacyOperator.
func nodekindMigrateOperator(op string) (nodekind.FilterOperator, error) {
	return nodekind.MigrateLegacyOperator(op)
}

// ToSettings deserializes one node's raw settings map into the typed
// Settings value its kind's registered Definition constructs.
func ToSettings(reg *nodekind.Registry, kind flowmodel.Kind, raw map[string]any) (flowmodel.Settings, error) {
	def, err := reg.Get(kind)
	if err != nil {
		return nil, err
	}
	settings := def.NewSettings()
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("document: re-encode settings for %s: %w", kind, err)
	}
	if err := json.Unmarshal(data, settings); err != nil {
		return nil, fmt.Errorf("document: decode settings for %s: %w", kind, err)
	}
	return settings, nil
}

// FromSettings serializes a typed Settings value back to a generic map
// for the document format.
func FromSettings(s flowmodel.Settings) (map[string]any, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// MarshalYAML and UnmarshalYAML provide the human-editable front-end
// mentioned in the expanded ambient stack; the canonical format remains
// JSON.
func MarshalYAML(doc *Document) ([]byte, error) {
	return yaml.Marshal(doc)
}

func UnmarshalYAML(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("document: yaml: %w", err)
	}
	return &doc, nil
}
