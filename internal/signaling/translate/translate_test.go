package translate

import "testing"

func TestEmptyRulesetIsIdentity(t *testing.T) {
	rs, err := Parse("")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !rs.Empty() {
		t.Fatalf("expected empty ruleset")
	}
	if got := rs.Apply("4915112345"); got != "4915112345" {
		t.Fatalf("identity law violated: got %q", got)
	}
}

func TestSingleRuleReplaceFirst(t *testing.T) {
	rs, err := Parse(`/^0049/+49/`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	got := rs.Apply("004915112345")
	want := "+4915112345"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestGlobalFlag(t *testing.T) {
	rs, err := Parse(`/-//g`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	got := rs.Apply("49-151-12345")
	want := "4915112345"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestNonGlobalReplacesOnlyFirst(t *testing.T) {
	rs, err := Parse(`/-//`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	got := rs.Apply("49-151-12345")
	want := "49151-12345"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestChainedRules(t *testing.T) {
	rs, err := Parse(`/^00/+/` + `/^\+49/0/`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	got := rs.Apply("0049151")
	want := "0151"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestCommentStripped(t *testing.T) {
	rs, err := Parse(`/^0049/+49/   # strip country code prefix`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	got := rs.Apply("004915112345")
	want := "+4915112345"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestEscapedSlashInPattern(t *testing.T) {
	rs, err := Parse(`/a\/b/X/`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	got := rs.Apply("xa/by")
	want := "xXy"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestUnterminatedRuleErrors(t *testing.T) {
	if _, err := Parse(`/abc/def`); err == nil {
		t.Fatalf("expected error for unterminated rule")
	}
}

func TestBadPatternErrors(t *testing.T) {
	if _, err := Parse(`/(unclosed/x/`); err == nil {
		t.Fatalf("expected error for invalid regexp")
	}
}

func TestCaptureGroupReplacement(t *testing.T) {
	rs, err := Parse(`/^(\d{3})(\d+)$/$1-$2/`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	got := rs.Apply("4915112345")
	want := "491-5112345"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}
