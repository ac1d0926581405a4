package imap

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/billfetch/internal/common"
)

func TestIsConfigured(t *testing.T) {
	tests := []struct {
		name   string
		config common.ImapConfig
		want   bool
	}{
		{
			name: "fully configured",
			config: common.ImapConfig{
				Host:     "imap.example.com",
				Port:     993,
				Username: "billing@example.com",
				Password: "s3cret",
			},
			want: true,
		},
		{
			name:   "empty config",
			config: common.ImapConfig{},
			want:   false,
		},
		{
			name: "missing password",
			config: common.ImapConfig{
				Host:     "imap.example.com",
				Username: "billing@example.com",
			},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewService(tt.config, arbor.NewLogger())
			assert.Equal(t, tt.want, s.IsConfigured())
		})
	}
}

func TestWaitForCodeRequiresConfiguration(t *testing.T) {
	s := NewService(common.ImapConfig{}, arbor.NewLogger())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	code, err := s.WaitForCode(ctx, "verification", 5*time.Minute)
	assert.Error(t, err)
	assert.Empty(t, code)
}
