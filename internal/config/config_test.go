package config

import "testing"

func TestFromEnv(t *testing.T) {
	t.Setenv("AUTOSHIP_STATUS_URL", "http://localhost:8080/status")
	t.Setenv("AUTOSHIP_PROMPT_URL", "http://localhost:9090")

	e, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if e.StatusURL != "http://localhost:8080/status" {
		t.Errorf("StatusURL = %q", e.StatusURL)
	}
	if e.PromptURL != "http://localhost:9090" {
		t.Errorf("PromptURL = %q", e.PromptURL)
	}
}

func TestFromEnvUnset(t *testing.T) {
	t.Setenv("AUTOSHIP_STATUS_URL", "")
	t.Setenv("AUTOSHIP_PROMPT_URL", "")

	e, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if e.StatusURL != "" || e.PromptURL != "" {
		t.Errorf("expected empty endpoints, got %+v", e)
	}
}
