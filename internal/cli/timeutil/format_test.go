package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatSpan(t *testing.T) {
	tests := []struct {
		name string
		in   time.Duration
		want string
	}{
		{name: "sub-second", in: 137 * time.Millisecond, want: "137ms"},
		{name: "seconds keep precision", in: 12*time.Second + 340*time.Millisecond, want: "12.34s"},
		{name: "minutes", in: 3*time.Minute + 5*time.Second, want: "3m 5s"},
		{name: "hours", in: 2*time.Hour + 30*time.Minute + 15*time.Second, want: "2h 30m 15s"},
		{name: "days", in: 72*time.Hour + 30*time.Minute, want: "3d 0h 30m 0s"},
		{name: "negative normalized", in: -90 * time.Second, want: "1m 30s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatSpan(tt.in))
		})
	}
}
