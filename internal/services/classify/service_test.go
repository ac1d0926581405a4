package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResponse(t *testing.T) {
	result, err := parseResponse(`{"document_type":"invoice","billing_month":"2024-03","service_name":"freee","suggested_filename":"freee-2024-03.pdf","confidence":0.93}`)
	require.NoError(t, err)
	assert.Equal(t, "invoice", result.DocumentType)
	assert.Equal(t, "2024-03", result.BillingMonth)
	assert.Equal(t, 0.93, result.Confidence)
}

func TestParseResponseCodeFence(t *testing.T) {
	result, err := parseResponse("```json\n{\"document_type\":\"receipt\",\"service_name\":\"chatwork\"}\n```")
	require.NoError(t, err)
	assert.Equal(t, "receipt", result.DocumentType)
	assert.Equal(t, "chatwork", result.ServiceName)
}

func TestParseResponseUnknownTypeDefaultsToReceipt(t *testing.T) {
	result, err := parseResponse(`{"document_type":"mystery"}`)
	require.NoError(t, err)
	assert.Equal(t, "receipt", result.DocumentType)
}

func TestParseResponseNotJSON(t *testing.T) {
	_, err := parseResponse("I could not classify this document.")
	require.Error(t, err)
}
