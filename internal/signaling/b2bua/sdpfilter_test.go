package b2bua

import (
	"strings"
	"testing"
)

const testSDP = `v=0
o=- 123456 1 IN IP4 10.0.0.1
s=-
c=IN IP4 10.0.0.1
t=0 0
m=audio 49170 RTP/AVP 0 8 96
a=rtpmap:0 PCMU/8000
a=rtpmap:8 PCMA/8000
a=rtpmap:96 opus/48000/2
a=fmtp:96 useinbandfec=1
`

func TestFilterSDPCodecsIntersects(t *testing.T) {
	out, err := FilterSDPCodecs([]byte(testSDP), map[string]bool{"0": true, "8": true})
	if err != nil {
		t.Fatalf("FilterSDPCodecs: %v", err)
	}
	s := string(out)
	if strings.Contains(s, "rtpmap:96") {
		t.Fatalf("expected opus (96) removed, got:\n%s", s)
	}
	if !strings.Contains(s, "rtpmap:0") || !strings.Contains(s, "rtpmap:8") {
		t.Fatalf("expected PCMU/PCMA kept, got:\n%s", s)
	}
}

func TestFilterSDPCodecsIdempotent(t *testing.T) {
	allowed := map[string]bool{"0": true, "8": true}
	once, err := FilterSDPCodecs([]byte(testSDP), allowed)
	if err != nil {
		t.Fatalf("first pass: %v", err)
	}
	twice, err := FilterSDPCodecs(once, allowed)
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if string(once) != string(twice) {
		t.Fatalf("filtering must be idempotent:\nfirst:\n%s\nsecond:\n%s", once, twice)
	}
}

func TestFilterSDPCodecsNoneLeftErrors(t *testing.T) {
	_, err := FilterSDPCodecs([]byte(testSDP), map[string]bool{"111": true})
	if err != ErrNoCodecsLeft {
		t.Fatalf("expected ErrNoCodecsLeft, got %v", err)
	}
}

func TestFilterSDPCodecsEmptyAllowedIsNoop(t *testing.T) {
	out, err := FilterSDPCodecs([]byte(testSDP), nil)
	if err != nil {
		t.Fatalf("FilterSDPCodecs: %v", err)
	}
	if string(out) != testSDP {
		t.Fatalf("nil allowedPts must leave body untouched")
	}
}

func TestApplyNATTagStripsPrefixAndTagsSDP(t *testing.T) {
	cld, body, natted := ApplyNATTag("nat-2000", []byte(testSDP))
	if !natted {
		t.Fatalf("expected natted=true")
	}
	if cld != "2000" {
		t.Fatalf("expected stripped cld 2000, got %q", cld)
	}
	if !strings.Contains(string(body), "a=nated:yes") {
		t.Fatalf("expected a=nated:yes appended, got:\n%s", body)
	}
}

func TestApplyNATTagNoPrefixIsNoop(t *testing.T) {
	cld, body, natted := ApplyNATTag("2000", []byte(testSDP))
	if natted {
		t.Fatalf("expected natted=false")
	}
	if cld != "2000" {
		t.Fatalf("cld must be unchanged")
	}
	if string(body) != testSDP {
		t.Fatalf("body must be unchanged")
	}
}
