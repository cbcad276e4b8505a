package config

import (
	"testing"
	"time"
)

func findChange(changes []Change, field string) (Change, bool) {
	for _, c := range changes {
		if c.Field == field {
			return c, true
		}
	}
	return Change{}, false
}

func TestDiff_IdenticalConfigs(t *testing.T) {
	cfg := Default()
	changes := Diff(cfg, cfg)
	if len(changes) != 0 {
		t.Errorf("identical configs should produce 0 changes, got %d", len(changes))
		for _, c := range changes {
			t.Logf("  change: %s old=%v new=%v", c.Field, c.OldValue, c.NewValue)
		}
	}
}

func TestDiff_NilAndEmptySlicesAreEqual(t *testing.T) {
	old := Default()
	new := Default()
	old.Security.BlockedRanges = nil
	new.Security.BlockedRanges = []string{}
	if changes := Diff(old, new); len(changes) != 0 {
		t.Errorf("nil vs empty slice should not differ, got %v", changes)
	}
}

func TestDiff_ReloadableFields(t *testing.T) {
	old := Default()
	new := Default()
	new.Logging.Level = "debug"
	new.CORS.AllowedOrigins = []string{"https://app.example.com"}
	new.Security.RateLimit.PerIP = 5

	changes := Diff(old, new)
	for _, field := range []string{"logging.level", "cors.allowed_origins", "security.rate_limit.per_ip"} {
		c, ok := findChange(changes, field)
		if !ok {
			t.Errorf("expected change for %s", field)
			continue
		}
		if !c.Reloadable {
			t.Errorf("%s should be reloadable", field)
		}
	}
}

func TestDiff_NonReloadableFields(t *testing.T) {
	old := Default()
	new := Default()
	new.Listen.Port = 9000
	new.Inspector.Timeout.Duration = 10 * time.Second
	new.Inspector.Client = "legacy"

	changes := Diff(old, new)
	for _, field := range []string{"listen.port", "inspector.timeout", "inspector.client"} {
		c, ok := findChange(changes, field)
		if !ok {
			t.Errorf("expected change for %s", field)
			continue
		}
		if c.Reloadable {
			t.Errorf("%s should require restart", field)
		}
	}

	c, _ := findChange(changes, "listen.port")
	if c.OldValue != 8000 || c.NewValue != 9000 {
		t.Errorf("listen.port change = %v -> %v, want 8000 -> 9000", c.OldValue, c.NewValue)
	}
}
