package httpapi

import (
	"encoding/json"
	"fmt"

	"github.com/opensight-project/opensight/importer"
)

// linkWire is the wire shape of a link reference, mirroring schema.py's
// LinkN: {id, name}.
type linkWire struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// inputWire is one input slot, accepting either the modern shape (a bare
// link object or null) or the legacy shape ({link, value} with exactly one
// set), per spec.md §6's "Nodetree serialization": "inputs[name] is either
// null, {id,name}, or (legacy) {link,value}."
type inputWire struct {
	Link  *linkWire       `json:"-"`
	Value json.RawMessage `json:"-"`
}

func (in *inputWire) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*in = inputWire{}
		return nil
	}

	var legacy struct {
		Link  *linkWire       `json:"link"`
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(data, &legacy); err == nil && (legacy.Link != nil || len(legacy.Value) > 0) {
		in.Link = legacy.Link
		in.Value = legacy.Value
		return nil
	}

	var link linkWire
	if err := json.Unmarshal(data, &link); err != nil {
		return fmt.Errorf("httpapi: input is neither a link object, a legacy {link,value}, nor null: %w", err)
	}
	in.Link = &link
	return nil
}

func (in inputWire) MarshalJSON() ([]byte, error) {
	if in.Link != nil {
		return json.Marshal(in.Link)
	}
	if len(in.Value) > 0 {
		return in.Value, nil
	}
	return []byte("null"), nil
}

// nodeWire is one proposed or persisted node, mirroring schema.py's NodeN.
// Pos and Extras are opaque to the core and preserved round-trip per
// spec.md §4.4's "Optional pos and extras are opaque and preserved
// round-trip."
type nodeWire struct {
	Type     string                 `json:"type"`
	ID       string                 `json:"id"`
	Settings map[string]interface{} `json:"settings"`
	Inputs   map[string]inputWire   `json:"inputs"`
	Pos      []interface{}          `json:"pos,omitempty"`
	Extras   map[string]interface{} `json:"extras,omitempty"`
}

// nodeTreeWire is the full wire nodetree, mirroring schema.py's NodeTreeN.
type nodeTreeWire struct {
	Nodes []nodeWire `json:"nodes"`
}

// toImporterSpec converts the wire nodetree into the importer's internal
// representation, decoding each static value's JSON payload into a plain
// Go value (map/slice/float64/string/bool/nil) the same way encoding/json
// would decode it into interface{}.
func (w nodeTreeWire) toImporterSpec() (importer.NodeTreeSpec, error) {
	spec := importer.NodeTreeSpec{Nodes: make([]importer.NodeSpec, 0, len(w.Nodes))}

	for _, n := range w.Nodes {
		ns := importer.NodeSpec{
			ID:       n.ID,
			Type:     n.Type,
			Settings: n.Settings,
			Inputs:   map[string]importer.NodeInput{},
		}

		for name, in := range n.Inputs {
			if in.Link != nil {
				ns.Inputs[name] = importer.NodeInput{Link: &importer.Link{NodeID: in.Link.ID, Output: in.Link.Name}}
				continue
			}
			if len(in.Value) > 0 {
				var v interface{}
				if err := json.Unmarshal(in.Value, &v); err != nil {
					return importer.NodeTreeSpec{}, fmt.Errorf("httpapi: node %s input %s: %w", n.ID, name, err)
				}
				ns.Inputs[name] = importer.NodeInput{Value: v}
			}
		}

		spec.Nodes = append(spec.Nodes, ns)
	}

	return spec, nil
}

// fromWireBytes decodes a raw JSON body into a nodeTreeWire.
func fromWireBytes(data []byte) (nodeTreeWire, error) {
	var w nodeTreeWire
	if err := json.Unmarshal(data, &w); err != nil {
		return nodeTreeWire{}, fmt.Errorf("httpapi: invalid nodetree JSON: %w", err)
	}
	return w, nil
}
