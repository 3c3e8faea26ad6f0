package domain

import (
	"encoding/json"
	"time"
)

// BreakdownLine records one action's contribution to a valuation.
// A line with a non-empty Error carries a zero delta; failed actions never
// abort the rest of the evaluation.
type BreakdownLine struct {
	RuleID      string        `json:"rule_id"`
	RuleName    string        `json:"rule_name"`
	GroupName   string        `json:"group_name"`
	Category    GroupCategory `json:"category"`
	ActionType  ActionType    `json:"action_type"`
	Delta       float64       `json:"delta"`
	Description string        `json:"description"`
	Error       string        `json:"error,omitempty"`
}

// Breakdown is the auditable result of evaluating one record against one
// ruleset snapshot. It is recomputed on demand and never versioned.
type Breakdown struct {
	ListingID      string          `json:"listing_id"`
	RulesetID      string          `json:"ruleset_id"`
	RulesetVersion int             `json:"ruleset_version"`
	BasePrice      float64         `json:"base_price"`
	Lines          []BreakdownLine `json:"lines"`

	TotalAdjustment float64 `json:"total_adjustment"`
	TotalDeductions float64 `json:"total_deductions"`
	AdjustedPrice   float64 `json:"adjusted_price"`

	EvaluatedAt time.Time `json:"evaluated_at"`
}

// DiffKind classifies a single field-level baseline change.
type DiffKind string

// Diff kinds.
const (
	DiffAdded   DiffKind = "added"
	DiffChanged DiffKind = "changed"
	DiffRemoved DiffKind = "removed"
)

// DiffEntry is one field-granular difference between a candidate baseline
// document and the active one. Path is "Entity.field".
type DiffEntry struct {
	Path   string          `json:"path"`
	Kind   DiffKind        `json:"kind"`
	Before json.RawMessage `json:"before,omitempty"`
	After  json.RawMessage `json:"after,omitempty"`
}

// BaselineDiff is the full comparison result. Consumed by adopt, never
// persisted.
type BaselineDiff struct {
	CandidateHash string      `json:"candidate_hash"`
	ActiveHash    string      `json:"active_hash"`
	Entries       []DiffEntry `json:"entries"`
}

// Entry returns the diff entry for path, or nil.
func (d *BaselineDiff) Entry(path string) *DiffEntry {
	for i := range d.Entries {
		if d.Entries[i].Path == path {
			return &d.Entries[i]
		}
	}
	return nil
}

// AuditEntry is an immutable log line recording a baseline lifecycle
// transition.
type AuditEntry struct {
	ID             string    `json:"id"               db:"id"`
	Actor          string    `json:"actor"            db:"actor"`
	Operation      string    `json:"operation"        db:"operation"`
	RulesetID      string    `json:"ruleset_id"       db:"ruleset_id"`
	PriorRulesetID string    `json:"prior_ruleset_id,omitempty" db:"prior_ruleset_id"`
	AdoptedFields  []string  `json:"adopted_fields,omitempty"`
	SkippedFields  []string  `json:"skipped_fields,omitempty"`
	At             time.Time `json:"at"               db:"at"`
}
