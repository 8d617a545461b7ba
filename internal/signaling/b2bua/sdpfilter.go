package b2bua

import (
	"fmt"

	psdp "github.com/pion/sdp/v3"
)

// ErrNoCodecsLeft is returned by FilterSDPCodecs when intersecting the
// offered formats with allowed_pts leaves a media section empty; the
// caller responds 488 Not Acceptable Here in that case.
var ErrNoCodecsLeft = fmt.Errorf("b2bua: no codecs left after filtering")

// FilterSDPCodecs intersects every RTP/AVP or RTP/SAVP media section's
// format list with allowedPts, dropping rtpmap/fmtp attributes for payload
// types no longer offered. A nil or empty allowedPts leaves body untouched.
// Calling this twice with the same allowedPts is idempotent: the second
// pass finds nothing left to remove.
func FilterSDPCodecs(body []byte, allowedPts map[string]bool) ([]byte, error) {
	if len(allowedPts) == 0 || len(body) == 0 {
		return body, nil
	}

	sdpObj := &psdp.SessionDescription{}
	if err := sdpObj.Unmarshal(body); err != nil {
		return nil, fmt.Errorf("parse SDP: %w", err)
	}

	changed := false
	for _, media := range sdpObj.MediaDescriptions {
		proto := media.MediaName.Protocol
		if proto != "RTP/AVP" && proto != "RTP/SAVP" {
			continue
		}

		kept := media.MediaName.Formats[:0]
		for _, pt := range media.MediaName.Formats {
			if allowedPts[pt] {
				kept = append(kept, pt)
			} else {
				changed = true
			}
		}
		media.MediaName.Formats = kept

		if len(kept) == 0 {
			return nil, ErrNoCodecsLeft
		}
		if changed {
			filterAttributesToFormats(media, kept)
		}
	}

	out, err := sdpObj.Marshal()
	if err != nil {
		return nil, fmt.Errorf("marshal filtered SDP: %w", err)
	}
	return out, nil
}

// filterAttributesToFormats drops rtpmap/fmtp attributes referencing a
// payload type no longer in kept, re-running the section's attribute
// optimization per the §4.7 SDP codec filter policy.
func filterAttributesToFormats(media *psdp.MediaDescription, kept []string) {
	allowed := make(map[string]bool, len(kept))
	for _, pt := range kept {
		allowed[pt] = true
	}

	out := media.Attributes[:0]
	for _, attr := range media.Attributes {
		if attr.Key != "rtpmap" && attr.Key != "fmtp" {
			out = append(out, attr)
			continue
		}
		pt, _, _ := cutSpace(attr.Value)
		if allowed[pt] {
			out = append(out, attr)
		}
	}
	media.Attributes = out
}

// cutSpace splits "96 opus/48000/2" into ("96", "opus/48000/2", true)
// without importing strings for a single call site.
func cutSpace(s string) (head, tail string, found bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == ' ' {
			return s[:i], s[i+1:], true
		}
	}
	return s, "", false
}

// natCldPrefix is the NAT tag marker stripped from cld per the §4.7 NAT
// policy; its presence is a routing hint, not part of the dialable number.
const natCldPrefix = "nat-"

// ApplyNATTag strips a "nat-" prefix from cld (returning the stripped cld
// and whether it was present) and, when present, appends "a=nated:yes" to
// the session-level SDP attributes.
func ApplyNATTag(cld string, body []byte) (newCld string, newBody []byte, natted bool) {
	if len(cld) <= len(natCldPrefix) || cld[:len(natCldPrefix)] != natCldPrefix {
		return cld, body, false
	}
	newCld = cld[len(natCldPrefix):]

	if len(body) == 0 {
		return newCld, body, true
	}
	sdpObj := &psdp.SessionDescription{}
	if err := sdpObj.Unmarshal(body); err != nil {
		return newCld, body, true
	}
	sdpObj.Attributes = append(sdpObj.Attributes, psdp.Attribute{Key: "nated", Value: "yes"})
	out, err := sdpObj.Marshal()
	if err != nil {
		return newCld, body, true
	}
	return newCld, out, true
}
