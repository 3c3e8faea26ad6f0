package record

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	domain "github.com/dealbrain/valuation/pkg/types"
)

func testRecord() *domain.Record {
	return &domain.Record{
		ListingID: "l1",
		Title:     "Dell OptiPlex 7080 Micro",
		BasePrice: 500,
		Currency:  "USD",
		Condition: "used_working",
		Quantity:  1,
		RAMGB:     16,
		CPU: &domain.CPU{
			Name:         "Intel Core i5-10500T",
			Cores:        6,
			Threads:      12,
			TDPW:         35,
			CPUMarkMulti: 9500,
		},
		Attributes: map[string]any{
			"wifi":         true,
			"psu_included": "yes",
			"usb_c_ports":  2,
			"weight_kg":    "1.2",
		},
	}
}

func TestResolve_BuiltinPaths(t *testing.T) {
	t.Parallel()

	r := testRecord()

	tests := []struct {
		path string
		want Value
	}{
		{"title", String("Dell OptiPlex 7080 Micro")},
		{"base_price", Number(500)},
		{"quantity", Number(1)},
		{"ram_gb", Number(16)},
		{"cpu.cores", Number(6)},
		{"cpu.cpu_mark_multi", Number(9500)},
		{"cpu.tdp_w", Number(35)},
		{"cpu.name", String("Intel Core i5-10500T")},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Resolve(r, tt.path))
		})
	}
}

func TestResolve_MissingNeverPanics(t *testing.T) {
	t.Parallel()

	r := testRecord()

	for _, path := range []string{
		"",
		"nope",
		"cpu.nope",
		"gpu.gpu_mark", // gpu entity absent
		"ram.total_gb", // ram entity absent
		"storage.medium",
		"cpu.cores.deeper",
		"attributes.unknown",
	} {
		assert.True(t, Resolve(r, path).IsMissing(), "path %q should be Missing", path)
	}

	assert.True(t, Resolve(nil, "title").IsMissing())
}

func TestResolve_DynamicAttributes(t *testing.T) {
	t.Parallel()

	r := testRecord()

	assert.Equal(t, Bool(true), Resolve(r, "wifi"))
	assert.Equal(t, Bool(true), Resolve(r, "attributes.wifi"))
	assert.Equal(t, String("yes"), Resolve(r, "psu_included"))
	assert.Equal(t, Number(2), Resolve(r, "usb_c_ports"))
}

func TestResolve_BuiltinPrefixShadowsAttributeKey(t *testing.T) {
	t.Parallel()

	r := testRecord()
	r.Attributes["cpu.stepping"] = "B0"

	// The cpu accessor owns the cpu. namespace, so the attribute is never
	// consulted.
	assert.True(t, Resolve(r, "cpu.stepping").IsMissing())
}

func TestValue_AsNumberCoercion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		val  Value
		want float64
		ok   bool
	}{
		{"number", Number(5), 5, true},
		{"numeric string", String("5"), 5, true},
		{"padded numeric string", String(" 42.5 "), 42.5, true},
		{"non-numeric string", String("DDR4"), 0, false},
		{"bool", Bool(true), 0, false},
		{"missing", Missing, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := tt.val.AsNumber()
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValue_AsString(t *testing.T) {
	t.Parallel()

	s, ok := Number(16).AsString()
	assert.True(t, ok)
	assert.Equal(t, "16", s)

	s, ok = Bool(false).AsString()
	assert.True(t, ok)
	assert.Equal(t, "false", s)

	_, ok = Missing.AsString()
	assert.False(t, ok)
}

func TestFromAny(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Number(3), FromAny(3))
	assert.Equal(t, Number(3.5), FromAny(3.5))
	assert.Equal(t, Number(7), FromAny(json.Number("7")))
	assert.Equal(t, String("x"), FromAny("x"))
	assert.Equal(t, Bool(true), FromAny(true))
	assert.True(t, FromAny(nil).IsMissing())
	assert.True(t, FromAny(struct{}{}).IsMissing())
}
