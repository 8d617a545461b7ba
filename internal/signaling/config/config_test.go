package config

import "testing"

func TestDefaults(t *testing.T) {
	cfg, err := LoadArgs(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != 5060 {
		t.Errorf("Port = %d, want 5060", cfg.Port)
	}
	if cfg.BindAddr != "0.0.0.0" {
		t.Errorf("BindAddr = %q, want 0.0.0.0", cfg.BindAddr)
	}
	if cfg.NoAuth {
		t.Errorf("NoAuth = true, want false")
	}
	if cfg.AcctLevel != 1 {
		t.Errorf("AcctLevel = %d, want 1", cfg.AcctLevel)
	}
}

func TestShortAndLongAgree(t *testing.T) {
	short, err := LoadArgs([]string{"-p", "5080", "-s", "10.0.0.1:5060"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	long, err := LoadArgs([]string{"--port", "5080", "--static-route", "10.0.0.1:5060"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if short.Port != long.Port || short.Port != 5080 {
		t.Errorf("Port mismatch: short=%d long=%d", short.Port, long.Port)
	}
	if short.StaticRoute != long.StaticRoute || short.StaticRoute != "10.0.0.1:5060" {
		t.Errorf("StaticRoute mismatch: short=%q long=%q", short.StaticRoute, long.StaticRoute)
	}
}

func TestRepeatableRTPProxy(t *testing.T) {
	cfg, err := LoadArgs([]string{"-r", "10.0.0.1:9000", "-r", "10.0.0.2:9000", "--rtp-proxy", "10.0.0.3:9000"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"10.0.0.1:9000", "10.0.0.2:9000", "10.0.0.3:9000"}
	if len(cfg.RTPProxies) != len(want) {
		t.Fatalf("RTPProxies = %v, want %v", cfg.RTPProxies, want)
	}
	for i, w := range want {
		if cfg.RTPProxies[i] != w {
			t.Errorf("RTPProxies[%d] = %q, want %q", i, cfg.RTPProxies[i], w)
		}
	}
}

func TestCommaListAcceptIPs(t *testing.T) {
	cfg, err := LoadArgs([]string{"-a", "10.0.0.0/24, 192.168.1.1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"10.0.0.0/24", "192.168.1.1"}
	if len(cfg.AcceptIPs) != len(want) {
		t.Fatalf("AcceptIPs = %v, want %v", cfg.AcceptIPs, want)
	}
	for i, w := range want {
		if cfg.AcceptIPs[i] != w {
			t.Errorf("AcceptIPs[%d] = %q, want %q", i, cfg.AcceptIPs[i], w)
		}
	}
}

func TestAllowedPtsLastOccurrenceWins(t *testing.T) {
	cfg, err := LoadArgs([]string{"-F", "0,8", "--allowed-pts", "0,8,18"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"0", "8", "18"}
	if len(cfg.AllowedPts) != len(want) {
		t.Fatalf("AllowedPts = %v, want %v", cfg.AllowedPts, want)
	}
}

func TestUnknownLongFlagIsHardError(t *testing.T) {
	_, err := LoadArgs([]string{"--bogus-flag", "value"})
	if err == nil {
		t.Fatal("expected error for unknown long flag, got nil")
	}
	var cfgErr *ConfigError
	if !asConfigError(err, &cfgErr) {
		t.Fatalf("expected *ConfigError, got %T: %v", err, err)
	}
}

func TestNoDigestStillDefaultsToFalse(t *testing.T) {
	cfg, err := LoadArgs(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.NoDigestAuth {
		t.Errorf("NoDigestAuth = true, want false by default")
	}
}

func TestHideCallIDFlag(t *testing.T) {
	cfg, err := LoadArgs([]string{"-H"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.HideCallID {
		t.Errorf("HideCallID = false, want true")
	}
}

func asConfigError(err error, target **ConfigError) bool {
	ce, ok := err.(*ConfigError)
	if ok {
		*target = ce
	}
	return ok
}
