package imap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractCode(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{
			name: "labeled english code",
			text: "Your verification code is 482913. It expires in 10 minutes.",
			want: "482913",
		},
		{
			name: "labeled japanese code",
			text: "認証番号: 038271\nこのコードは10分間有効です。",
			want: "038271",
		},
		{
			name: "label preferred over earlier number",
			text: "Order #20240301 confirmed. Your code is 7731.",
			want: "7731",
		},
		{
			name: "bare code fallback",
			text: "123456",
			want: "123456",
		},
		{
			name: "too short",
			text: "Use pin 123 to continue",
			want: "",
		},
		{
			name: "no digits",
			text: "Please confirm your email address.",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractCode(tt.text))
		})
	}
}

func TestHTMLToText(t *testing.T) {
	body := `<html><head><style>p { color: red; }</style></head>
		<body><p>認証番号: <b>038271</b></p><script>track();</script></body></html>`

	text, err := htmlToText(body)
	assert.NoError(t, err)
	assert.Contains(t, text, "認証番号")
	assert.Contains(t, text, "038271")
	assert.NotContains(t, text, "track()")
	assert.NotContains(t, text, "color: red")

	assert.Equal(t, "038271", ExtractCode(text))
}
