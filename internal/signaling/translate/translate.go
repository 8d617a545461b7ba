// Package translate implements the static_tr_in/static_tr_out number
// rewrite DSL: a sed-like "/pattern/replacement/flags" grammar, with
// multiple rules chained one after another and applied in order.
//
// Grammar (per rule): /pattern/replacement/flags
//   - pattern is an RE2 regular expression (Go's regexp/syntax, not PCRE;
//     the B2BUA this rewrites used PCRE, but RE2 covers every construct a
//     CLD rewrite rule plausibly needs).
//   - replacement uses Go's regexp ReplaceAll syntax ($1, $name).
//   - flags is currently just an optional "g" (replace all matches; the
//     default is replace-first).
//   - a '#' outside of pattern/replacement starts a comment running to
//     end of rule text and is stripped before parsing.
//
// Multiple rules are written back to back ("/a/b//c/d/g") and chain: each
// rule runs against the output of the previous one.
package translate

import (
	"fmt"
	"regexp"
	"strings"
)

// Rule is one compiled "/pattern/replacement/flags" rule.
type Rule struct {
	pattern     *regexp.Regexp
	replacement string
	global      bool
}

// Ruleset is an ordered, parsed, ready-to-apply chain of Rules.
type Ruleset struct {
	rules []Rule
}

// Empty reports whether the ruleset has no rules; per the round-trip law,
// Apply on an empty ruleset is the identity.
func (rs *Ruleset) Empty() bool { return rs == nil || len(rs.rules) == 0 }

// Apply runs every rule in order against cld, chaining outputs to inputs.
func (rs *Ruleset) Apply(cld string) string {
	if rs == nil {
		return cld
	}
	out := cld
	for _, r := range rs.rules {
		if r.global {
			out = r.pattern.ReplaceAllString(out, r.replacement)
		} else {
			out = replaceFirst(r.pattern, out, r.replacement)
		}
	}
	return out
}

// replaceFirst applies re.ReplaceAllString semantics but only to the first
// match, matching sed's default (non-"g") behavior.
func replaceFirst(re *regexp.Regexp, s, repl string) string {
	loc := re.FindStringSubmatchIndex(s)
	if loc == nil {
		return s
	}
	var out []byte
	out = append(out, s[:loc[0]]...)
	out = re.ExpandString(out, repl, s, loc)
	out = append(out, s[loc[1]:]...)
	return string(out)
}

// parseState is the explicit state machine driving Parse. Each state
// consumes exactly one field of one rule before advancing; this avoids the
// ambiguity of splitting on '/' directly, since pattern/replacement text
// may itself legitimately contain an escaped '\/'.
type parseState int

const (
	stateExpectSlash parseState = iota
	stateInPattern
	stateInReplacement
	stateInFlags
)

// Parse compiles a rule string into a Ruleset. A blank string (after
// comment-stripping) yields an empty Ruleset.
func Parse(rulesText string) (*Ruleset, error) {
	text := stripComment(rulesText)
	text = strings.TrimSpace(text)
	if text == "" {
		return &Ruleset{}, nil
	}

	var rules []Rule
	state := stateExpectSlash
	var pattern, replacement, flags strings.Builder
	escaped := false

	flush := func() error {
		re, err := regexp.Compile(pattern.String())
		if err != nil {
			return fmt.Errorf("translate: bad pattern %q: %w", pattern.String(), err)
		}
		rules = append(rules, Rule{
			pattern:     re,
			replacement: replacement.String(),
			global:      strings.Contains(flags.String(), "g"),
		})
		pattern.Reset()
		replacement.Reset()
		flags.Reset()
		return nil
	}

	for i := 0; i < len(text); i++ {
		c := text[i]

		switch state {
		case stateExpectSlash:
			if c != '/' {
				return nil, fmt.Errorf("translate: expected '/' at offset %d, got %q", i, c)
			}
			state = stateInPattern

		case stateInPattern:
			if escaped {
				// Only '\/' is unescaped here; any other escape (\d, \+)
				// is regexp syntax and keeps its backslash.
				if c != '/' {
					pattern.WriteByte('\\')
				}
				pattern.WriteByte(c)
				escaped = false
				continue
			}
			switch c {
			case '\\':
				escaped = true
			case '/':
				state = stateInReplacement
			default:
				pattern.WriteByte(c)
			}

		case stateInReplacement:
			if escaped {
				if c != '/' {
					replacement.WriteByte('\\')
				}
				replacement.WriteByte(c)
				escaped = false
				continue
			}
			switch c {
			case '\\':
				escaped = true
			case '/':
				state = stateInFlags
			default:
				replacement.WriteByte(c)
			}

		case stateInFlags:
			if c == '/' {
				if err := flush(); err != nil {
					return nil, err
				}
				state = stateInPattern
				continue
			}
			flags.WriteByte(c)
		}
	}

	switch state {
	case stateInFlags:
		if err := flush(); err != nil {
			return nil, err
		}
	case stateExpectSlash:
		// Well-formed end: either nothing left, or trailing whitespace
		// already trimmed.
	default:
		return nil, fmt.Errorf("translate: unterminated rule (missing closing '/')")
	}

	return &Ruleset{rules: rules}, nil
}

// stripComment removes a '#'-introduced trailing comment. A '#' can appear
// legitimately nowhere in this grammar's pattern/replacement/flags fields
// in practice, so a simple first-'#' cut is sufficient and matches "comment
// after # are stripped."
func stripComment(s string) string {
	if i := strings.IndexByte(s, '#'); i >= 0 {
		return s[:i]
	}
	return s
}
