// Package baseline manages the lifecycle of system-provided baseline
// valuation documents: instantiating them into immutable ruleset versions,
// diffing candidate documents against the active one, and adopting selected
// upstream changes without clobbering local edits.
package baseline

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	domain "github.com/dealbrain/valuation/pkg/types"
)

// Document is the source-of-truth baseline format shipped by the system.
// Entities maps entity name ("CPU", "GPU", "Listing", ...) to field name to
// the rule spec for that field.
type Document struct {
	Name     string                                `json:"name"`
	Entities map[string]map[string]json.RawMessage `json:"entities"`
}

// RuleSpec is one field's valuation rule inside a baseline document.
type RuleSpec struct {
	Description     string            `json:"description,omitempty"`
	Condition       *domain.Condition `json:"condition,omitempty"`
	Action          domain.Action     `json:"action"`
	EvaluationOrder int               `json:"evaluation_order,omitempty"`
}

// ParseDocument decodes and validates baseline document bytes.
func ParseDocument(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding baseline document: %w", err)
	}
	if doc.Name == "" {
		return nil, fmt.Errorf("baseline document has no name")
	}
	if len(doc.Entities) == 0 {
		return nil, fmt.Errorf("baseline document %q has no entities", doc.Name)
	}
	return &doc, nil
}

// Hash returns the canonical content hash of the document. Payload bytes are
// decoded before hashing so formatting differences never change the hash.
func (d *Document) Hash() string {
	type entry struct {
		Path string `json:"path"`
		Spec any    `json:"spec"`
	}

	var entries []entry
	for _, path := range d.paths() {
		var spec any
		_ = json.Unmarshal(d.lookup(path), &spec)
		entries = append(entries, entry{Path: path, Spec: spec})
	}
	return domain.Fingerprint(struct {
		Name    string  `json:"name"`
		Entries []entry `json:"entries"`
	}{Name: d.Name, Entries: entries})
}

// paths returns every "Entity.field" path in the document, sorted.
func (d *Document) paths() []string {
	var out []string
	for entity, fields := range d.Entities {
		for field := range fields {
			out = append(out, entity+"."+field)
		}
	}
	sort.Strings(out)
	return out
}

// lookup returns the raw spec payload at an "Entity.field" path, or nil.
func (d *Document) lookup(path string) json.RawMessage {
	entity, field, ok := splitPath(path)
	if !ok {
		return nil
	}
	return d.Entities[entity][field]
}

// set writes a spec payload at path, creating the entity map if needed.
func (d *Document) set(path string, spec json.RawMessage) {
	entity, field, ok := splitPath(path)
	if !ok {
		return
	}
	if d.Entities == nil {
		d.Entities = make(map[string]map[string]json.RawMessage)
	}
	if d.Entities[entity] == nil {
		d.Entities[entity] = make(map[string]json.RawMessage)
	}
	d.Entities[entity][field] = spec
}

// remove deletes the spec at path, dropping the entity map when it empties.
func (d *Document) remove(path string) {
	entity, field, ok := splitPath(path)
	if !ok {
		return
	}
	delete(d.Entities[entity], field)
	if len(d.Entities[entity]) == 0 {
		delete(d.Entities, entity)
	}
}

// clone deep-copies the document.
func (d *Document) clone() *Document {
	cp := &Document{
		Name:     d.Name,
		Entities: make(map[string]map[string]json.RawMessage, len(d.Entities)),
	}
	for entity, fields := range d.Entities {
		cp.Entities[entity] = make(map[string]json.RawMessage, len(fields))
		for field, spec := range fields {
			cp.Entities[entity][field] = append(json.RawMessage(nil), spec...)
		}
	}
	return cp
}

func splitPath(path string) (entity, field string, ok bool) {
	return strings.Cut(path, ".")
}
