// Package domain defines the core business types for the valuation rule engine.
package domain

// Record is a read-only view over a listing and its joined component entities,
// produced by the data-access layer. The engine never queries for data itself;
// it only resolves field paths against this view.
type Record struct {
	ListingID string  `json:"listing_id"`
	Title     string  `json:"title"`
	BasePrice float64 `json:"base_price"`
	Currency  string  `json:"currency"`
	Condition string  `json:"condition"`
	Quantity  int     `json:"quantity"`

	// Denormalized convenience fields kept in sync with the component
	// entities by the data-access layer.
	RAMGB            float64 `json:"ram_gb"`
	PrimaryStorageGB float64 `json:"primary_storage_gb"`

	CPU     *CPU            `json:"cpu,omitempty"`
	GPU     *GPU            `json:"gpu,omitempty"`
	RAM     *RAMSpec        `json:"ram,omitempty"`
	Storage *StorageProfile `json:"storage,omitempty"`

	// Attributes holds dynamic custom fields. Unknown paths fall back here.
	Attributes map[string]any `json:"attributes,omitempty"`
}

// CPU holds the joined CPU entity.
type CPU struct {
	Name          string  `json:"name"`
	Cores         int     `json:"cores"`
	Threads       int     `json:"threads"`
	TDPW          float64 `json:"tdp_w"`
	CPUMarkSingle float64 `json:"cpu_mark_single"`
	CPUMarkMulti  float64 `json:"cpu_mark_multi"`
	IGPUMark      float64 `json:"igpu_mark"`
}

// GPU holds the joined GPU entity.
type GPU struct {
	Name    string  `json:"name"`
	GPUMark float64 `json:"gpu_mark"`
	VRAMGB  float64 `json:"vram_gb"`
}

// RAMSpec holds the joined RAM specification.
type RAMSpec struct {
	TotalGB  float64 `json:"total_gb"`
	DDRGen   string  `json:"ddr_gen"`
	SpeedMHz float64 `json:"speed_mhz"`
	Modules  int     `json:"modules"`
}

// StorageProfile holds the joined storage profile.
type StorageProfile struct {
	TotalGB   float64 `json:"total_gb"`
	Medium    string  `json:"medium"`
	Interface string  `json:"interface"`
}
