package radius

import "testing"

func TestParseIVRAttrsAllPrefixes(t *testing.T) {
	attrs := []Attribute{
		{Name: "h323-ivr-in", Value: "CLI:5551234"},
		{Name: "h323-ivr-in", Value: "CNAM:Jane Doe"},
		{Name: "h323-ivr-in", Value: "Routing:10.0.0.1:5060,10.0.0.2:5060"},
		{Name: "h323-credit-time", Value: "3600"},
	}
	got := ParseIVRAttrs(attrs)
	if got.CLI != "5551234" || got.CNAM != "Jane Doe" {
		t.Fatalf("unexpected CLI/CNAM: %+v", got)
	}
	if got.Routing != "10.0.0.1:5060,10.0.0.2:5060" {
		t.Fatalf("unexpected Routing: %q", got.Routing)
	}
	if got.CreditTime != 3600 {
		t.Fatalf("unexpected CreditTime: %d", got.CreditTime)
	}
}

func TestParseIVRAttrsIgnoresUnknown(t *testing.T) {
	attrs := []Attribute{{Name: "some-other-attr", Value: "whatever"}}
	got := ParseIVRAttrs(attrs)
	if got != (ParsedIVR{}) {
		t.Fatalf("expected zero value, got %+v", got)
	}
}

func TestParseIVRAttrsBadCreditTimeIgnored(t *testing.T) {
	attrs := []Attribute{{Name: "h323-credit-time", Value: "not-a-number"}}
	got := ParseIVRAttrs(attrs)
	if got.CreditTime != 0 {
		t.Fatalf("expected CreditTime 0 on parse failure, got %d", got.CreditTime)
	}
}
