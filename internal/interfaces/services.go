package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/billfetch/internal/models"
)

// SecretService resolves credentials for a vendor from the secret store.
type SecretService interface {
	CredentialsFor(ctx context.Context, vendor *models.VendorConfig) (*models.Credentials, error)
	Count(ctx context.Context) (int, error)
}

// OTPInbox polls an email inbox for a one-time code.
type OTPInbox interface {
	// WaitForCode polls for an OTP mail matching the subject filter. Mails
	// older than maxAge are ignored; the overall wait is bounded by the ctx
	// deadline set by the caller.
	WaitForCode(ctx context.Context, subjectFilter string, maxAge time.Duration) (string, error)
	IsConfigured() bool
}

// Classifier is the external document-classification collaborator. The
// automation core calls it after capture; it never blocks a download.
type Classifier interface {
	Classify(ctx context.Context, artifact *models.DownloadedArtifact) (*models.Classification, error)
}

// AgentResult is what the external AI login agent reports over stdio.
type AgentResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// LoginAgent drives an optional external AI-driven login helper as a bounded
// subprocess exchanging JSON over stdio.
type LoginAgent interface {
	AttemptLogin(ctx context.Context, loginURL string, creds *models.Credentials) (*AgentResult, error)
	Available() bool
}
