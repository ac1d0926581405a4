package models

import "time"

// DownloadOptions tunes a single download run.
type DownloadOptions struct {
	// TargetMonth selects the billing month as "YYYY-MM". Empty means the
	// previous calendar month. Connectors convert this to whatever literal
	// format the vendor UI or API expects.
	TargetMonth string `json:"target_month,omitempty"`
}

// DownloadRequest is the body of POST /download.
type DownloadRequest struct {
	VendorKey   string           `json:"vendorKey" validate:"required"`
	Credentials *Credentials     `json:"credentials,omitempty"`
	Options     *DownloadOptions `json:"options,omitempty"`
	Demo        bool             `json:"demo,omitempty"`
}

// DebugInfo carries the chronological log buffer and screenshots attached to
// every download response, successful or not.
type DebugInfo struct {
	Logs        []string `json:"logs"`
	Screenshots []string `json:"screenshots"` // base64 PNG, latest last
	Duration    string   `json:"duration"`
}

// RunRecord is the persisted summary of one download run, kept for the
// history endpoint. Artifact bytes are never persisted, only counts.
type RunRecord struct {
	ID        string    `json:"id"`
	VendorKey string    `json:"vendor_key"`
	Success   bool      `json:"success"`
	Files     int       `json:"files"`
	Error     string    `json:"error,omitempty"`
	Duration  string    `json:"duration"`
	StartedAt time.Time `json:"started_at"`
}

// DownloadResponse is the body returned by POST /download.
type DownloadResponse struct {
	Success   bool                 `json:"success"`
	VendorKey string               `json:"vendorKey"`
	Files     []DownloadedArtifact `json:"files"`
	Error     string               `json:"error,omitempty"`
	Debug     DebugInfo            `json:"debug"`
}
