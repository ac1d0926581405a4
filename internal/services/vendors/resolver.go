// -----------------------------------------------------------------------
// Authentication Resolver - picks the credential source for a request:
// explicit caller credentials, a stored cookie bundle, or the secret store.
// -----------------------------------------------------------------------

package vendors

import (
	"context"
	"errors"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/billfetch/internal/interfaces"
	"github.com/ternarybob/billfetch/internal/models"
)

// AuthSource names where the resolved credentials came from.
type AuthSource string

const (
	AuthSourceExplicit AuthSource = "explicit"
	AuthSourceStored   AuthSource = "stored"
	AuthSourceSecret   AuthSource = "secret_store"
)

// ResolvedAuth is the resolver's verdict for one request. Exactly one of
// Credentials and StoredRecord is set, depending on Source.
type ResolvedAuth struct {
	Source       AuthSource
	Credentials  *models.Credentials
	StoredRecord *models.StoredAuthRecord
}

// Resolver selects among explicit, stored, and secret-store credentials.
type Resolver struct {
	authStore interfaces.AuthStore
	secrets   interfaces.SecretService
	logger    arbor.ILogger
}

// NewResolver creates an authentication resolver
func NewResolver(authStore interfaces.AuthStore, secrets interfaces.SecretService, logger arbor.ILogger) *Resolver {
	return &Resolver{
		authStore: authStore,
		secrets:   secrets,
		logger:    logger,
	}
}

// Resolve picks the credential source for a request. Order: explicit caller
// credentials, then a stored auth record carrying at least one cookie, then
// the secret store. A stored record with zero cookies is treated as absent.
func (r *Resolver) Resolve(ctx context.Context, vendor *models.VendorConfig, explicit *models.Credentials) (*ResolvedAuth, error) {
	if explicit != nil {
		r.logger.Debug().Str("vendor", vendor.Key).Msg("Using explicit credentials from request")
		return &ResolvedAuth{Source: AuthSourceExplicit, Credentials: explicit}, nil
	}

	record, err := r.authStore.Load(ctx, vendor.Key)
	switch {
	case err == nil && record.HasCookies():
		r.logger.Debug().
			Str("vendor", vendor.Key).
			Int("cookies", len(record.Cookies)).
			Msg("Using stored auth record")
		return &ResolvedAuth{Source: AuthSourceStored, StoredRecord: record}, nil
	case err == nil:
		r.logger.Debug().Str("vendor", vendor.Key).Msg("Stored auth record has no cookies, falling through to secret store")
	case errors.Is(err, interfaces.ErrAuthNotFound):
		// no stored record, keep going
	default:
		return nil, fmt.Errorf("failed to load stored auth for '%s': %w", vendor.Key, err)
	}

	creds, err := r.secrets.CredentialsFor(ctx, vendor)
	if err != nil {
		return nil, fmt.Errorf("no usable credentials for vendor '%s': %w", vendor.Key, err)
	}

	return &ResolvedAuth{Source: AuthSourceSecret, Credentials: creds}, nil
}
