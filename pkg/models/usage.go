package models

import (
	"time"
)

// UsageRecord tracks quota consumption for a single principal. One record
// exists per principal, created lazily on first admission.
type UsageRecord struct {
	Principal        string    `json:"principal" db:"principal"`
	DailyUsageBytes  int64     `json:"daily_usage_bytes" db:"daily_usage_bytes"`
	TotalStoredBytes int64     `json:"total_stored_bytes" db:"total_stored_bytes"`
	LastReset        time.Time `json:"last_reset" db:"last_reset"`
}

// Remaining reports the headroom left for a principal.
type Remaining struct {
	StorageBytes   int64 `json:"storage_bytes"`
	BandwidthBytes int64 `json:"bandwidth_bytes"`
}

// MegabytesToBytes converts a wire-format MB value to bytes. The ledger HTTP
// surface speaks MB, the core accounts in bytes.
func MegabytesToBytes(mb float64) int64 {
	return int64(mb * float64(1<<20))
}

// BytesToMegabytes converts bytes to a wire-format MB value.
func BytesToMegabytes(b int64) float64 {
	return float64(b) / float64(1<<20)
}
