package radius

import (
	"strconv"
	"strings"
)

// ParsedIVR is the subset of h323-ivr-in content the controller acts on.
type ParsedIVR struct {
	Routing    string // raw "Routing:" payload, one route per caller-defined delimiter
	CLI        string // "CLI:" override
	CNAM       string // "CNAM:" override (caller display name)
	CreditTime int    // seconds, from h323-credit-time; 0 if absent
}

// ParseIVRAttrs scans the attribute list produced by an AuthProcessor for
// h323-ivr-in (prefixes "CLI:", "CNAM:", "Routing:") and h323-credit-time.
// Unknown prefixes/attributes are ignored, matching the "only their
// contracts named" scope: this module only has to recognize the three
// prefixes spec'd for routing.
func ParseIVRAttrs(attrs []Attribute) ParsedIVR {
	var out ParsedIVR
	for _, a := range attrs {
		switch a.Name {
		case "h323-ivr-in":
			switch {
			case strings.HasPrefix(a.Value, "CLI:"):
				out.CLI = strings.TrimPrefix(a.Value, "CLI:")
			case strings.HasPrefix(a.Value, "CNAM:"):
				out.CNAM = strings.TrimPrefix(a.Value, "CNAM:")
			case strings.HasPrefix(a.Value, "Routing:"):
				out.Routing = strings.TrimPrefix(a.Value, "Routing:")
			}
		case "h323-credit-time":
			if n, err := strconv.Atoi(strings.TrimSpace(a.Value)); err == nil {
				out.CreditTime = n
			}
		}
	}
	return out
}
