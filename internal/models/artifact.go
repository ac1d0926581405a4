package models

// Classification holds the optional fields populated by the external
// document classification collaborator after capture. The automation core
// never fills these in itself.
type Classification struct {
	DocumentType      string  `json:"document_type,omitempty"` // "invoice", "receipt", ...
	BillingMonth      string  `json:"billing_month,omitempty"` // YYYY-MM
	ServiceName       string  `json:"service_name,omitempty"`
	SuggestedFilename string  `json:"suggested_filename,omitempty"`
	Confidence        float64 `json:"confidence,omitempty"`
	Notes             string  `json:"notes,omitempty"`
}

// DownloadedArtifact is a captured downloadable file.
type DownloadedArtifact struct {
	Filename       string          `json:"filename"`
	Content        []byte          `json:"content"`
	MimeType       string          `json:"mime_type"`
	Size           int             `json:"size"`
	Pages          int             `json:"pages,omitempty"`
	Classification *Classification `json:"classification,omitempty"`
}
