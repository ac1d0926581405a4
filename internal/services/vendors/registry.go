// -----------------------------------------------------------------------
// Vendor Registry - whitelist checks and connector lookup/dispatch.
// -----------------------------------------------------------------------

package vendors

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/billfetch/internal/interfaces"
	"github.com/ternarybob/billfetch/internal/models"
)

// Registry holds the vendor whitelist and the registered connectors.
type Registry struct {
	configs    map[string]*models.VendorConfig
	connectors map[string]interfaces.VendorConnector
	logger     arbor.ILogger
}

// NewRegistry builds a registry from the vendor configs. Only enabled
// vendors are whitelisted; the whitelist argument, when non-empty, restricts
// the set further.
func NewRegistry(configs []models.VendorConfig, whitelist []string, logger arbor.ILogger) *Registry {
	allowed := map[string]bool{}
	for _, key := range whitelist {
		allowed[key] = true
	}

	r := &Registry{
		configs:    map[string]*models.VendorConfig{},
		connectors: map[string]interfaces.VendorConnector{},
		logger:     logger,
	}

	for i := range configs {
		cfg := &configs[i]
		if !cfg.Enabled {
			continue
		}
		if len(allowed) > 0 && !allowed[cfg.Key] {
			continue
		}
		r.configs[cfg.Key] = cfg
	}

	return r
}

// Register attaches a connector implementation to its vendor key. Connectors
// for vendors outside the whitelist are ignored.
func (r *Registry) Register(connector interfaces.VendorConnector) {
	key := connector.Key()
	if _, ok := r.configs[key]; !ok {
		r.logger.Warn().Str("vendor", key).Msg("Connector registered for non-whitelisted vendor, ignoring")
		return
	}
	r.connectors[key] = connector
	r.logger.Debug().Str("vendor", key).Msg("Vendor connector registered")
}

// Config returns the vendor config, or a ValidationError when the key is
// not whitelisted. The error message is part of the API contract.
func (r *Registry) Config(vendorKey string) (*models.VendorConfig, error) {
	cfg, ok := r.configs[vendorKey]
	if !ok {
		return nil, models.NewValidationError(models.ValidationNotPermitted, "Vendor '%s' is not whitelisted", vendorKey)
	}
	return cfg, nil
}

// Connector resolves the connector for a vendor key. A whitelisted vendor
// with no registered connector yields NotImplementedError.
func (r *Registry) Connector(vendorKey string) (interfaces.VendorConnector, error) {
	if _, err := r.Config(vendorKey); err != nil {
		return nil, err
	}
	connector, ok := r.connectors[vendorKey]
	if !ok {
		return nil, &models.NotImplementedError{VendorKey: vendorKey}
	}
	return connector, nil
}

// Keys returns the whitelisted vendor keys.
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.configs))
	for key := range r.configs {
		keys = append(keys, key)
	}
	return keys
}

// Implemented reports whether a connector is registered for the key.
func (r *Registry) Implemented(vendorKey string) bool {
	_, ok := r.connectors[vendorKey]
	return ok
}
