package metrics

import "testing"

func TestCanonicalPath(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"", "/"},
		{"/", "/"},
		{"//", "/"},
		{"/health", "/health"},
		{"/metrics", "/metrics"},
		{"/v1", "/v1"},
		{"/v1/meals", "/v1/meals"},
		{"/v1/meals/123e4567-e89b-12d3-a456-426614174000", "/v1/meals/:id"},
		{"/v1/meals/summary", "/v1/meals/summary"},
		{"/v1/goals/progress", "/v1/goals/progress"},
		{"/v1/profiles/selection", "/v1/profiles/selection"},
		{"/v1/password/check", "/v1/password/check"},
		{"/v1/sessions/sess-42", "/v1/sessions/:id"},
		{"/v1/sessions/sess-42/events", "/v1/sessions/:id/events"},
		{"/v1/sessions/sess-42/upload", "/v1/sessions/:id/upload"},
	}

	for _, tt := range tests {
		if got := CanonicalPath(tt.raw); got != tt.want {
			t.Errorf("CanonicalPath(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}
