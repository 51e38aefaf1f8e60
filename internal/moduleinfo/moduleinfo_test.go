package moduleinfo

import "testing"

func TestUserAgent(t *testing.T) {
	if got, want := UserAgent(), "plugin-live-translate/0.3.0"; got != want {
		t.Fatalf("UserAgent() = %q, want %q", got, want)
	}
	if Info.HealthService == "" {
		t.Fatal("health service name must not be empty")
	}
}
