package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskToken(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "empty value",
			input:    "",
			expected: "",
		},
		{
			name:     "bearer token keeps scheme and prefix",
			input:    "Bearer abcdefghijklmnop",
			expected: "Bearer abcd***MASKED***",
		},
		{
			name:     "raw token keeps prefix",
			input:    "abcdefghijklmnop",
			expected: "abcd***MASKED***",
		},
		{
			name:     "short credential fully masked",
			input:    "Bearer short",
			expected: "Bearer ***MASKED***",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, MaskToken(tt.input))
		})
	}
}
