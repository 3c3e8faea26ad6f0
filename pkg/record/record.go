// Package record implements total field-path resolution over a listing
// record. Unknown paths and incompatible coercions resolve to Missing,
// never an error or panic, so condition evaluation can treat absence as a
// regular comparison state.
package record

import (
	"encoding/json"
	"strconv"
	"strings"

	domain "github.com/dealbrain/valuation/pkg/types"
)

// Kind discriminates the Value variant.
type Kind int

// Value kinds.
const (
	KindMissing Kind = iota
	KindNumber
	KindString
	KindBool
)

// Value is the result of resolving a field path: a number, string, bool, or
// the explicit Missing sentinel.
type Value struct {
	Kind Kind
	Num  float64
	Str  string
	Bool bool
}

// Missing is the sentinel for unresolved paths.
var Missing = Value{Kind: KindMissing}

// Number wraps a float64.
func Number(n float64) Value { return Value{Kind: KindNumber, Num: n} }

// String wraps a string.
func String(s string) Value { return Value{Kind: KindString, Str: s} }

// Bool wraps a bool.
func Bool(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// IsMissing reports whether the value is the Missing sentinel.
func (v Value) IsMissing() bool { return v.Kind == KindMissing }

// AsNumber coerces the value to a float64 following the coercion table:
//
//	number -> itself
//	string -> parsed float ("5" -> 5); unparsable -> no
//	bool   -> no
//	missing-> no
func (v Value) AsNumber() (float64, bool) {
	switch v.Kind {
	case KindNumber:
		return v.Num, true
	case KindString:
		n, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// AsString coerces the value to a string. Numbers format without a trailing
// zero fraction; bools as "true"/"false"; missing does not coerce.
func (v Value) AsString() (string, bool) {
	switch v.Kind {
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64), true
	case KindString:
		return v.Str, true
	case KindBool:
		return strconv.FormatBool(v.Bool), true
	default:
		return "", false
	}
}

// FromAny converts a dynamic attribute or JSON operand into a Value.
// Unsupported types map to Missing.
func FromAny(v any) Value {
	switch n := v.(type) {
	case nil:
		return Missing
	case float64:
		return Number(n)
	case float32:
		return Number(float64(n))
	case int:
		return Number(float64(n))
	case int64:
		return Number(float64(n))
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return String(n.String())
		}
		return Number(f)
	case string:
		return String(n)
	case bool:
		return Bool(n)
	default:
		return Missing
	}
}

// Resolve looks up a dot-separated path against the record. Top-level
// listing fields and the cpu/gpu/ram/storage entities use a closed accessor
// set; anything unmatched falls through to the dynamic attribute map, first
// under an explicit "attributes." prefix, then by bare key. Builtin entity
// prefixes shadow attribute keys: an attribute keyed "cpu.foo" is never
// reachable because the cpu accessor owns that namespace.
func Resolve(r *domain.Record, path string) Value {
	if r == nil || path == "" {
		return Missing
	}

	if v, ok := resolveBuiltin(r, path); ok {
		return v
	}

	key := strings.TrimPrefix(path, "attributes.")
	if attr, ok := r.Attributes[key]; ok {
		return FromAny(attr)
	}
	return Missing
}

func resolveBuiltin(r *domain.Record, path string) (Value, bool) {
	head, rest, nested := strings.Cut(path, ".")
	if nested {
		switch head {
		case "cpu":
			return resolveCPU(r.CPU, rest)
		case "gpu":
			return resolveGPU(r.GPU, rest)
		case "ram":
			return resolveRAM(r.RAM, rest)
		case "storage":
			return resolveStorage(r.Storage, rest)
		default:
			return Missing, false
		}
	}

	switch path {
	case "listing_id":
		return String(r.ListingID), true
	case "title":
		return String(r.Title), true
	case "base_price":
		return Number(r.BasePrice), true
	case "currency":
		return String(r.Currency), true
	case "condition":
		return String(r.Condition), true
	case "quantity":
		return Number(float64(r.Quantity)), true
	case "ram_gb":
		return Number(r.RAMGB), true
	case "primary_storage_gb":
		return Number(r.PrimaryStorageGB), true
	default:
		return Missing, false
	}
}

func resolveCPU(c *domain.CPU, field string) (Value, bool) {
	if c == nil {
		return Missing, true
	}
	switch field {
	case "name":
		return String(c.Name), true
	case "cores":
		return Number(float64(c.Cores)), true
	case "threads":
		return Number(float64(c.Threads)), true
	case "tdp_w":
		return Number(c.TDPW), true
	case "cpu_mark_single":
		return Number(c.CPUMarkSingle), true
	case "cpu_mark_multi":
		return Number(c.CPUMarkMulti), true
	case "igpu_mark":
		return Number(c.IGPUMark), true
	default:
		return Missing, true
	}
}

func resolveGPU(g *domain.GPU, field string) (Value, bool) {
	if g == nil {
		return Missing, true
	}
	switch field {
	case "name":
		return String(g.Name), true
	case "gpu_mark":
		return Number(g.GPUMark), true
	case "vram_gb":
		return Number(g.VRAMGB), true
	default:
		return Missing, true
	}
}

func resolveRAM(m *domain.RAMSpec, field string) (Value, bool) {
	if m == nil {
		return Missing, true
	}
	switch field {
	case "total_gb":
		return Number(m.TotalGB), true
	case "ddr_gen":
		return String(m.DDRGen), true
	case "speed_mhz":
		return Number(m.SpeedMHz), true
	case "modules":
		return Number(float64(m.Modules)), true
	default:
		return Missing, true
	}
}

func resolveStorage(s *domain.StorageProfile, field string) (Value, bool) {
	if s == nil {
		return Missing, true
	}
	switch field {
	case "total_gb":
		return Number(s.TotalGB), true
	case "medium":
		return String(s.Medium), true
	case "interface":
		return String(s.Interface), true
	default:
		return Missing, true
	}
}

// BuiltinFields lists every path the closed accessor set resolves, used by
// package import validation to distinguish builtin from custom field
// dependencies.
func BuiltinFields() []string {
	return []string{
		"listing_id", "title", "base_price", "currency", "condition",
		"quantity", "ram_gb", "primary_storage_gb",
		"cpu.name", "cpu.cores", "cpu.threads", "cpu.tdp_w",
		"cpu.cpu_mark_single", "cpu.cpu_mark_multi", "cpu.igpu_mark",
		"gpu.name", "gpu.gpu_mark", "gpu.vram_gb",
		"ram.total_gb", "ram.ddr_gen", "ram.speed_mhz", "ram.modules",
		"storage.total_gb", "storage.medium", "storage.interface",
	}
}
