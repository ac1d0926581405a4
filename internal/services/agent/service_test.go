package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResult(t *testing.T) {
	result, err := parseResult([]byte(`{"success":true,"message":"logged in"}`))
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "logged in", result.Message)
}

func TestParseResultLastJSONLineWins(t *testing.T) {
	out := []byte("navigating to login page\n{\"success\":false}\n{\"success\":true,\"message\":\"done\"}\n")
	result, err := parseResult(out)
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestParseResultProgressLinesIgnored(t *testing.T) {
	out := []byte("filling username field\nsubmitting form\n{\"success\":false,\"message\":\"captcha shown\"}")
	result, err := parseResult(out)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "captcha shown", result.Message)
}

func TestParseResultNoJSON(t *testing.T) {
	_, err := parseResult([]byte("crashed before reporting"))
	require.Error(t, err)
}
