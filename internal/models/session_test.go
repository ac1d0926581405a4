package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSessionStatusOccupies(t *testing.T) {
	tests := []struct {
		status SessionStatus
		want   bool
	}{
		{SessionStarting, true},
		{SessionActive, true},
		{SessionProcessing, true},
		{SessionCompleted, false},
		{SessionFailed, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.Occupies())
		})
	}
}
