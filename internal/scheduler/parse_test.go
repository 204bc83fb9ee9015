package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSchedule(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"hourly", "0 * * * *"},
		{"every hour", "0 * * * *"},
		{"daily", "0 9 * * *"},
		{"every day", "0 9 * * *"},
		{"daily at 5pm", "0 17 * * *"},
		{"daily at 5:30pm", "30 17 * * *"},
		{"daily at 8am", "0 8 * * *"},
		{"daily at 12am", "0 0 * * *"},
		{"every morning at 7:15am", "15 7 * * *"},
		{"weekly", "0 9 * * 1"},
		{"every monday at 10am", "0 10 * * 1"},
		{"every 30 minutes", "*/30 * * * *"},
		{"every 2 hours", "0 */2 * * *"},
		{"*/5 * * * *", "*/5 * * * *"}, // raw cron passthrough
	}
	for _, tt := range tests {
		got, err := ParseSchedule(tt.in)
		require.NoError(t, err, "input %q", tt.in)
		assert.Equal(t, tt.want, got, "input %q", tt.in)
	}
}

func TestParseScheduleRejectsUnknown(t *testing.T) {
	for _, in := range []string{"", "whenever", "on tuesdays sometimes", "every 0 minutes"} {
		_, err := ParseSchedule(in)
		assert.Error(t, err, "input %q", in)
	}
}
