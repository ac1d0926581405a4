package interfaces

import (
	"context"

	"github.com/ternarybob/billfetch/internal/models"
)

// VendorConnector implements the login/navigate/download/verify contract for
// one vendor. Browser-backed connectors receive a chromedp page context;
// API-only connectors treat ctx as a plain request context.
type VendorConnector interface {
	// Key returns the vendor key this connector serves.
	Key() string

	// Login authenticates with the vendor. It fails with an authentication
	// error on bad credentials or unverifiable state.
	Login(ctx context.Context, creds *models.Credentials) error

	// RestoreSession injects a previously captured cookie+localStorage
	// bundle instead of performing a login.
	RestoreSession(ctx context.Context, record *models.StoredAuthRecord) error

	// NavigateToInvoices moves to the vendor's invoice listing.
	NavigateToInvoices(ctx context.Context) error

	// DownloadInvoices captures the invoice artifacts for the target month.
	DownloadInvoices(ctx context.Context, opts *models.DownloadOptions) ([]models.DownloadedArtifact, error)

	// IsLoggedIn verifies the authenticated state via vendor heuristics.
	IsLoggedIn(ctx context.Context) (bool, error)
}
