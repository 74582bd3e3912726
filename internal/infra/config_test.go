package infra

import "testing"

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("WEBHOOK_SECRET", "hook-secret")
	t.Setenv("STORAGE_SIGN_SECRET", "sign-secret")
}

func TestLoadConfigDefaultsStorageBaseURLFromPublicBase(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PUBLIC_BASE_URL", "https://app.example.com/")
	t.Setenv("STORAGE_BASE_URL", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	expected := "https://app.example.com/static"
	if cfg.StorageBaseURL != expected {
		t.Fatalf("StorageBaseURL mismatch: got %q want %q", cfg.StorageBaseURL, expected)
	}
}

func TestLoadConfigRequiresWebhookSecret(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("WEBHOOK_SECRET", "")
	t.Setenv("STORAGE_SIGN_SECRET", "sign-secret")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for missing WEBHOOK_SECRET")
	}
}

func TestParsePlanLimits(t *testing.T) {
	limits := parsePlanLimits("free=10, pro=200 ,broken, neg=-1")
	if len(limits) != 2 {
		t.Fatalf("limits = %#v, want 2 entries", limits)
	}
	if limits["free"] != 10 || limits["pro"] != 200 {
		t.Fatalf("limits mismatch: %#v", limits)
	}
}

func TestBillingLocationFallsBackToUTC(t *testing.T) {
	cfg := &Config{BillingTimezone: "Not/AZone"}
	if loc := cfg.BillingLocation(); loc != nil && loc.String() != "UTC" {
		t.Fatalf("location = %s, want UTC", loc)
	}
}
