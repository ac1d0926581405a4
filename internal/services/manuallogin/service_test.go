package manuallogin

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoginTransitionComplete(t *testing.T) {
	const start = "https://accounts.secure.freee.co.jp/login"

	// Still on the starting login page: not complete, regardless of what
	// the connector's own check would say.
	assert.False(t, loginTransitionComplete(start, start))

	// Moved, but still on a login path (e.g. a 2FA step).
	assert.False(t, loginTransitionComplete("https://accounts.secure.freee.co.jp/login/two_factor", start))

	// Left the login path but the URL never changed from the start URL.
	assert.False(t, loginTransitionComplete("https://secure.freee.co.jp/dashboard", "https://secure.freee.co.jp/dashboard"))

	// Left the login path and moved away from the start URL.
	assert.True(t, loginTransitionComplete("https://secure.freee.co.jp/dashboard", start))
}

func TestLoginTransitionSSOPath(t *testing.T) {
	const start = "https://login.account.rakuten.com/sso/authorize?client_id=x"

	assert.False(t, loginTransitionComplete("https://login.account.rakuten.com/sso/verify", start))
	assert.True(t, loginTransitionComplete("https://portal.mobile.rakuten.co.jp/dashboard", start))
}
