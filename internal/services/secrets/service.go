// Secret-credential store: a thin fetch over the KV storage. Values are
// JSON credential blobs keyed by the vendor's secret reference.

package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/billfetch/internal/interfaces"
	"github.com/ternarybob/billfetch/internal/models"
)

// Service resolves vendor credentials from the secret store.
type Service struct {
	kv     interfaces.KeyValueStorage
	logger arbor.ILogger
}

// NewService creates a new secret service
func NewService(kv interfaces.KeyValueStorage, logger arbor.ILogger) *Service {
	return &Service{kv: kv, logger: logger}
}

// secretBlob is the stored JSON shape. Which fields are present decides the
// credential variant.
type secretBlob struct {
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`

	ProfileDir string `json:"profile_dir,omitempty"`

	DeveloperToken string `json:"developer_token,omitempty"`
	ClientID       string `json:"client_id,omitempty"`
	ClientSecret   string `json:"client_secret,omitempty"`
	RefreshToken   string `json:"refresh_token,omitempty"`
	CustomerID     string `json:"customer_id,omitempty"`
	BillingSetupID string `json:"billing_setup_id,omitempty"`
}

// CredentialsFor fetches and decodes the credential blob for a vendor.
func (s *Service) CredentialsFor(ctx context.Context, vendor *models.VendorConfig) (*models.Credentials, error) {
	if vendor.SecretRef == "" {
		return nil, fmt.Errorf("vendor '%s' has no secret reference configured", vendor.Key)
	}

	raw, err := s.kv.Get(ctx, vendor.SecretRef)
	if err != nil {
		if errors.Is(err, interfaces.ErrKeyNotFound) {
			return nil, fmt.Errorf("no secret stored under '%s' for vendor '%s'", vendor.SecretRef, vendor.Key)
		}
		return nil, fmt.Errorf("failed to fetch secret '%s': %w", vendor.SecretRef, err)
	}

	var blob secretBlob
	if err := json.Unmarshal([]byte(raw), &blob); err != nil {
		return nil, fmt.Errorf("secret '%s' is not a valid credential blob: %w", vendor.SecretRef, err)
	}

	creds, err := blob.toCredentials()
	if err != nil {
		return nil, fmt.Errorf("secret '%s': %w", vendor.SecretRef, err)
	}

	s.logger.Debug().
		Str("vendor", vendor.Key).
		Str("type", string(creds.Type)).
		Msg("Credentials resolved from secret store")

	return creds, nil
}

// Count returns the number of stored secrets, used by the status snapshot.
func (s *Service) Count(ctx context.Context) (int, error) {
	return s.kv.Count(ctx)
}

func (b *secretBlob) toCredentials() (*models.Credentials, error) {
	switch {
	case b.DeveloperToken != "" || b.RefreshToken != "":
		return &models.Credentials{
			Type: models.CredentialAPIOAuth,
			APIOAuth: &models.APIOAuthCredentials{
				DeveloperToken: b.DeveloperToken,
				ClientID:       b.ClientID,
				ClientSecret:   b.ClientSecret,
				RefreshToken:   b.RefreshToken,
				CustomerID:     b.CustomerID,
				BillingSetupID: b.BillingSetupID,
			},
		}, nil
	case b.ProfileDir != "":
		return &models.Credentials{
			Type:       models.CredentialChromeProfile,
			ProfileDir: b.ProfileDir,
		}, nil
	case b.Username != "":
		return &models.Credentials{
			Type:     models.CredentialUsernamePassword,
			Username: b.Username,
			Password: b.Password,
		}, nil
	default:
		return nil, fmt.Errorf("credential blob has no recognizable fields")
	}
}
