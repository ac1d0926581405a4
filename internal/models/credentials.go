package models

// CredentialType discriminates the credential union.
type CredentialType string

const (
	CredentialUsernamePassword CredentialType = "username_password"
	CredentialCookieBundle     CredentialType = "cookie_bundle"
	CredentialChromeProfile    CredentialType = "chrome_profile"
	CredentialAPIOAuth         CredentialType = "api_oauth"
)

// Credentials is a tagged union: exactly the fields for its Type are set.
type Credentials struct {
	Type CredentialType `json:"type"`

	// username_password
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`

	// cookie_bundle
	Cookies []CookieRecord `json:"cookies,omitempty"`

	// chrome_profile
	ProfileDir string `json:"profile_dir,omitempty"`

	// api_oauth
	APIOAuth *APIOAuthCredentials `json:"api_oauth,omitempty"`
}

// APIOAuthCredentials authenticates a pure-API vendor.
type APIOAuthCredentials struct {
	DeveloperToken string `json:"developer_token"`
	ClientID       string `json:"client_id"`
	ClientSecret   string `json:"client_secret"`
	RefreshToken   string `json:"refresh_token"`
	CustomerID     string `json:"customer_id"`
	BillingSetupID string `json:"billing_setup_id"`
}

// CookieRecord mirrors the browser's cookie shape. Expires is a unix
// timestamp in seconds; -1 means a session cookie.
type CookieRecord struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"sameSite,omitempty"`
}
