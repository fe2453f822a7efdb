package intake

import "testing"

func TestParseMode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want Mode
		ok   bool
	}{
		{in: "", want: ModeSync, ok: true},
		{in: "SYNC", want: ModeSync, ok: true},
		{in: " async ", want: ModeAsync, ok: true},
		{in: "queue", want: ModeQueue, ok: true},
		{in: "batch", ok: false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, ok := ParseMode(tt.in)
			if ok != tt.ok || got != tt.want {
				t.Fatalf("ParseMode(%q) = %q, %v", tt.in, got, ok)
			}
		})
	}
}
