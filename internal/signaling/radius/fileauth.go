package radius

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// FileAuthProcessor is the deployment's default AuthProcessor: it answers
// Authenticate from a flat routing table loaded from -R/--radius-conf
// instead of a live RADIUS Access-Request round trip (no RADIUS client is
// implemented — see the package doc). Each non-comment, non-blank line is
// "cld,hostport[,credit_time]"; Authenticate matches the call's cld against
// the first field and replies with the h323-ivr-in/h323-credit-time
// attributes ParseIVRAttrs expects.
type FileAuthProcessor struct {
	path string
}

// NewFileAuthProcessor builds a FileAuthProcessor reading routes from path.
// The file is re-read on every Authenticate call, so edits take effect
// without a restart.
func NewFileAuthProcessor(path string) *FileAuthProcessor {
	return &FileAuthProcessor{path: path}
}

type fileAuthRoute struct {
	cld        string
	hostPort   string
	creditTime int
}

func (p *FileAuthProcessor) loadRoutes() ([]fileAuthRoute, error) {
	if p.path == "" {
		return nil, fmt.Errorf("radius: no radius-conf path configured")
	}
	f, err := os.Open(p.path)
	if err != nil {
		return nil, fmt.Errorf("radius: open %s: %w", p.path, err)
	}
	defer f.Close()

	var routes []fileAuthRoute
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, ",")
		if len(fields) < 2 {
			continue
		}
		route := fileAuthRoute{
			cld:      strings.TrimSpace(fields[0]),
			hostPort: strings.TrimSpace(fields[1]),
		}
		if len(fields) >= 3 {
			if n, err := strconv.Atoi(strings.TrimSpace(fields[2])); err == nil {
				route.creditTime = n
			}
		}
		routes = append(routes, route)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("radius: read %s: %w", p.path, err)
	}
	return routes, nil
}

// Authenticate looks up cld in the routing table, returning OK:false (not
// an error) when no row matches, matching RADIUS's Access-Reject semantics.
func (p *FileAuthProcessor) Authenticate(ctx context.Context, cli, cld, sourceAddr string) (*AuthResult, error) {
	routes, err := p.loadRoutes()
	if err != nil {
		return nil, err
	}

	for _, r := range routes {
		if r.cld != cld {
			continue
		}
		attrs := []Attribute{{Name: "h323-ivr-in", Value: "Routing:" + r.hostPort}}
		if r.creditTime > 0 {
			attrs = append(attrs, Attribute{Name: "h323-credit-time", Value: strconv.Itoa(r.creditTime)})
		}
		return &AuthResult{OK: true, Attributes: attrs}, nil
	}
	return &AuthResult{OK: false}, nil
}

// Cancel is a no-op: loadRoutes has no in-flight request to abort.
func (p *FileAuthProcessor) Cancel() {}

var _ AuthProcessor = (*FileAuthProcessor)(nil)
