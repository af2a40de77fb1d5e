package models

import "time"

// Conversion outcomes recorded in history and metrics.
const (
	StatusOK      = "ok"
	StatusEmpty   = "empty"
	StatusInvalid = "invalid"
	StatusTooMany = "too_many"
	StatusError   = "error"
)

// ConversionRecord represents one request to the conversion endpoint
type ConversionRecord struct {
	ID          string    `json:"id" parquet:"id"`
	CreatedAt   time.Time `json:"created_at" parquet:"created_at"`
	Status      string    `json:"status" parquet:"status"`
	Filenames   []string  `json:"filenames" parquet:"filenames,list"`
	Pages       int64     `json:"pages" parquet:"pages"`
	InputBytes  int64     `json:"input_bytes" parquet:"input_bytes"`
	OutputBytes int64     `json:"output_bytes" parquet:"output_bytes"`
	DurationMS  int64     `json:"duration_ms" parquet:"duration_ms"`
	Error       string    `json:"error,omitempty" parquet:"error,optional"`
	RemoteAddr  string    `json:"remote_addr,omitempty" parquet:"remote_addr,optional"`
}
