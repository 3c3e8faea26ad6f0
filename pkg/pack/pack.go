// Package pack serializes rulesets into a portable, versioned,
// hash-addressable JSON package for export, import, and sharing. The format
// is deliberately human-diffable: plain indented JSON, stable group and rule
// ordering, no binary sections.
package pack

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dealbrain/valuation/pkg/formula"
	"github.com/dealbrain/valuation/pkg/record"
	domain "github.com/dealbrain/valuation/pkg/types"
)

// SchemaVersion is the current package schema. Import refuses packages with
// a different major schema.
const SchemaVersion = 1

// Package is the self-contained export format.
type Package struct {
	SchemaVersion int                `json:"schema_version"`
	ContentHash   string             `json:"content_hash"`
	Metadata      Metadata           `json:"metadata"`
	Requires      Requirements       `json:"requires"`
	RuleGroups    []domain.RuleGroup `json:"rule_groups"`
}

// Metadata describes the package's provenance.
type Metadata struct {
	Name           string    `json:"name"`
	RulesetID      string    `json:"ruleset_id"`
	RulesetVersion int       `json:"ruleset_version"`
	SystemBaseline bool      `json:"system_baseline"`
	ExportedAt     time.Time `json:"exported_at"`
}

// Requirements declares what the importing side must provide. Fields lists
// custom (non-builtin) field paths referenced by conditions, actions, or
// formulas.
type Requirements struct {
	Fields []string `json:"fields,omitempty"`
}

// IncompatibleError reports why a package cannot be imported. Imports are
// all-or-nothing; a partially-satisfiable package is rejected whole.
type IncompatibleError struct {
	SchemaGot     int
	SchemaWant    int
	HashMismatch  bool
	MissingFields []string
}

func (e *IncompatibleError) Error() string {
	var parts []string
	if e.SchemaGot != e.SchemaWant {
		parts = append(parts, fmt.Sprintf(
			"schema version %d (supported: %d)", e.SchemaGot, e.SchemaWant,
		))
	}
	if e.HashMismatch {
		parts = append(parts, "content hash does not match payload")
	}
	if len(e.MissingFields) > 0 {
		parts = append(parts, "missing fields: "+strings.Join(e.MissingFields, ", "))
	}
	return "incompatible package: " + strings.Join(parts, "; ")
}

// Export serializes a ruleset into package bytes. Groups and rules are
// emitted in deterministic evaluation order so exports of equal rulesets are
// byte-comparable.
func Export(rs *domain.Ruleset) ([]byte, error) {
	groups := rs.OrderedGroups()

	p := Package{
		SchemaVersion: SchemaVersion,
		ContentHash:   domain.Fingerprint(groups),
		Metadata: Metadata{
			Name:           rs.Name,
			RulesetID:      rs.ID,
			RulesetVersion: rs.Version,
			SystemBaseline: rs.SystemBaseline,
			ExportedAt:     time.Now().UTC(),
		},
		Requires:   Requirements{Fields: customFieldRefs(groups)},
		RuleGroups: groups,
	}

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding package: %w", err)
	}
	return data, nil
}

// Import validates package bytes and constructs a fresh, inactive ruleset.
// availableCustomFields lists the custom field paths the importing system
// defines; builtin record fields are always available. Validation failures
// return a typed *IncompatibleError and import nothing.
func Import(data []byte, availableCustomFields []string) (*domain.Ruleset, error) {
	var p Package
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decoding package: %w", err)
	}

	incompat := &IncompatibleError{SchemaGot: p.SchemaVersion, SchemaWant: SchemaVersion}

	if p.ContentHash != domain.Fingerprint(p.RuleGroups) {
		incompat.HashMismatch = true
	}

	available := make(map[string]struct{}, len(availableCustomFields))
	for _, f := range availableCustomFields {
		available[normalizeField(f)] = struct{}{}
	}
	for _, f := range p.Requires.Fields {
		if _, ok := available[normalizeField(f)]; !ok {
			incompat.MissingFields = append(incompat.MissingFields, f)
		}
	}

	if incompat.SchemaGot != incompat.SchemaWant ||
		incompat.HashMismatch ||
		len(incompat.MissingFields) > 0 {
		return nil, incompat
	}

	return &domain.Ruleset{
		ID:             uuid.NewString(),
		Name:           p.Metadata.Name,
		Version:        1,
		Active:         false,
		SystemBaseline: p.Metadata.SystemBaseline,
		ContentHash:    p.ContentHash,
		Groups:         p.RuleGroups,
		CreatedAt:      time.Now().UTC(),
	}, nil
}

// customFieldRefs walks the rule tree and collects referenced field paths
// that the builtin accessor set does not cover.
func customFieldRefs(groups []domain.RuleGroup) []string {
	builtin := make(map[string]struct{})
	for _, f := range record.BuiltinFields() {
		builtin[f] = struct{}{}
	}

	seen := make(map[string]struct{})
	var out []string
	add := func(path string) {
		if path == "" {
			return
		}
		path = normalizeField(path)
		if _, ok := builtin[path]; ok {
			return
		}
		if _, ok := seen[path]; ok {
			return
		}
		seen[path] = struct{}{}
		out = append(out, path)
	}

	for _, g := range groups {
		for _, r := range g.Rules {
			walkConditionFields(r.Condition, add)
			for _, a := range r.Actions {
				add(a.UnitField)
				add(a.Field)
				add(a.BenchmarkField)
				if a.Type == domain.ActionFormula {
					if c, err := formula.Parse(a.Expression); err == nil {
						for _, ref := range c.References() {
							add(ref)
						}
					}
				}
			}
		}
	}

	slices.Sort(out)
	return out
}

func walkConditionFields(cond domain.Condition, add func(string)) {
	if cond.Comparison != nil {
		add(cond.Comparison.Field)
	}
	if cond.Group != nil {
		for _, child := range cond.Group.Children {
			walkConditionFields(child, add)
		}
	}
}

func normalizeField(path string) string {
	return strings.TrimPrefix(path, "attributes.")
}
