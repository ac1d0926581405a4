package models

// VendorConfig is the static, immutable description of one supported vendor.
// Loaded once at startup and never mutated.
type VendorConfig struct {
	Key             string   `json:"key" toml:"key"`
	DisplayName     string   `json:"display_name" toml:"display_name"`
	SecretRef       string   `json:"secret_ref" toml:"secret_ref"`
	Enabled         bool     `json:"enabled" toml:"enabled"`
	DomainPatterns  []string `json:"domain_patterns" toml:"domain_patterns"`
	SpecialHandling string   `json:"special_handling" toml:"special_handling"`
	LoginURL        string   `json:"login_url" toml:"login_url"`
	AppRootURL      string   `json:"app_root_url" toml:"app_root_url"`
}

// DefaultVendorConfigs returns the built-in vendor set.
func DefaultVendorConfigs() []VendorConfig {
	return []VendorConfig{
		{
			Key:             "freee",
			DisplayName:     "freee会計",
			SecretRef:       "vendor_freee",
			Enabled:         true,
			DomainPatterns:  []string{"freee.co.jp", "secure.freee.co.jp"},
			SpecialHandling: "cookie_oauth",
			LoginURL:        "https://accounts.secure.freee.co.jp/login",
			AppRootURL:      "https://secure.freee.co.jp",
		},
		{
			Key:             "chatwork",
			DisplayName:     "Chatwork",
			SecretRef:       "vendor_chatwork",
			Enabled:         true,
			DomainPatterns:  []string{"chatwork.com", "www.chatwork.com"},
			SpecialHandling: "profile_oauth",
			LoginURL:        "https://www.chatwork.com/login.php",
			AppRootURL:      "https://www.chatwork.com",
		},
		{
			Key:             "rakuten",
			DisplayName:     "楽天モバイル",
			SecretRef:       "vendor_rakuten",
			Enabled:         true,
			DomainPatterns:  []string{"rakuten.co.jp", "portal.mobile.rakuten.co.jp"},
			SpecialHandling: "otp_hybrid",
			LoginURL:        "https://login.account.rakuten.com/sso/authorize",
			AppRootURL:      "https://portal.mobile.rakuten.co.jp",
		},
		{
			Key:             "googleads",
			DisplayName:     "Google Ads",
			SecretRef:       "vendor_googleads",
			Enabled:         true,
			DomainPatterns:  []string{"ads.google.com", "googleads.googleapis.com"},
			SpecialHandling: "api",
		},
	}
}
