package config

import (
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the signaling server configuration. Field names follow the
// CLI flag's long spelling; every flag below except --advertise and
// --loglevel (long form only) has both a short and long form registered
// (per §6), and every short flag's long alias is documented next to the
// field it fills.
type Config struct {
	// SIP settings
	Port          int
	BindAddr      string
	AdvertiseAddr string
	LogLevel      string

	// Process lifecycle
	Foreground bool          // -f/--foreground
	PIDFile    string        // -P/--pidfile
	LogFile    string        // -L/--logfile
	Keepalive  time.Duration // -k/--keepalive, interval between SIP OPTIONS keepalives

	// Routing & auth
	StaticRoute     string          // -s/--static-route, bypasses RADIUS entirely
	AcceptIPs       []string        // -a/--accept-ips, comma-list of IP/CIDR
	NoDigestAuth    bool            // -D/--no-digest
	NoAuth          bool            // -u/--no-auth
	AcctLevel       int             // -A/--acct-level
	TrIn            string          // -t/--tr-in, static_tr_in translate ruleset text
	TrOut           string          // -T/--tr-out, static_tr_out translate ruleset text
	MaxCreditTime   int             // -m/--max-credit-time, seconds; 0 = unlimited
	RTPProxies      []string        // -r/--rtp-proxy, repeatable
	AllowedPts      []string        // -F/--allowed-pts, comma-list of payload types
	RadiusConf      string          // -R/--radius-conf
	PassHeaders     []string        // -h/--pass-header, repeatable/comma-list
	Socket          string          // -c/--socket, control socket path
	MaxRadiusClient int             // -M/--max-radius-clients
	HideCallID      bool            // -H/--hide-call-id

	// Config file
	ConfigFile  string // -C/--config, recorded only; no file is read
	WriteConfig string // -W/--write-config, recorded only; nothing is written
}

// ConfigError is returned for any CLI parsing failure, including the
// redesigned "unknown --long=value is a hard error" behavior (REDESIGN
// FLAG: the original's generic dynamic-dictionary loader silently ignored
// unrecognized flags).
type ConfigError struct {
	Flag   string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Flag, e.Reason)
}

// multiFlag implements flag.Value for repeatable flags (-r/--rtp-proxy,
// -h/--pass-header): each occurrence appends rather than overwrites.
type multiFlag []string

func (m *multiFlag) String() string { return strings.Join(*m, ",") }
func (m *multiFlag) Set(v string) error {
	if v == "" {
		return fmt.Errorf("empty value not allowed")
	}
	*m = append(*m, v)
	return nil
}

// commaList implements flag.Value for comma-separated single-occurrence
// flags (-a/--accept-ips, -F/--allowed-pts): each Set call replaces the
// list, split on ','.
type commaList []string

func (c *commaList) String() string { return strings.Join(*c, ",") }
func (c *commaList) Set(v string) error {
	*c = nil
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			*c = append(*c, part)
		}
	}
	return nil
}

// Load parses os.Args into a Config. -C/--config and -W/--write-config are
// stored in ConfigFile and WriteConfig, but no config file is read or
// written. Both the short and long spelling of every
// flag are registered against the same destination, and an unrecognized
// "--name=value" long flag is a hard ConfigError, not a silent ignore.
func Load() (*Config, error) {
	return LoadArgs(os.Args[1:])
}

// LoadArgs is Load with an explicit argument list, for testability.
func LoadArgs(args []string) (*Config, error) {
	cfg := &Config{
		AcctLevel: 1,
	}

	fs := flag.NewFlagSet("switchboard", flag.ContinueOnError)

	var rtpProxies, passHeaders multiFlag
	var acceptIPs, allowedPts commaList

	pair := func(short, long string, dest *string, def, usage string) {
		fs.StringVar(dest, short, def, usage)
		fs.StringVar(dest, long, def, usage)
	}
	pairInt := func(short, long string, dest *int, def int, usage string) {
		fs.IntVar(dest, short, def, usage)
		fs.IntVar(dest, long, def, usage)
	}
	pairBool := func(short, long string, dest *bool, def bool, usage string) {
		fs.BoolVar(dest, short, def, usage)
		fs.BoolVar(dest, long, def, usage)
	}
	pairDuration := func(short, long string, dest *time.Duration, def time.Duration, usage string) {
		fs.DurationVar(dest, short, def, usage)
		fs.DurationVar(dest, long, def, usage)
	}

	pairBool("f", "foreground", &cfg.Foreground, false, "run in foreground (do not daemonize)")
	pair("l", "listen", &cfg.BindAddr, "0.0.0.0", "SIP bind address")
	pairInt("p", "port", &cfg.Port, 5060, "SIP listening port")
	pair("P", "pidfile", &cfg.PIDFile, "", "path to write the PID file")
	pair("L", "logfile", &cfg.LogFile, "", "path to the log file (stdout if empty)")
	pair("s", "static-route", &cfg.StaticRoute, "", "static route host:port, bypasses RADIUS routing")
	fs.Var(&acceptIPs, "a", "comma-separated accept_ips allowlist (IP or CIDR)")
	fs.Var(&acceptIPs, "accept-ips", "comma-separated accept_ips allowlist (IP or CIDR)")
	pairBool("D", "no-digest", &cfg.NoDigestAuth, false, "disable digest challenge, still runs RADIUS auth")
	pairInt("A", "acct-level", &cfg.AcctLevel, 1, "accounting verbosity level")
	pair("t", "tr-in", &cfg.TrIn, "", "static_tr_in translate ruleset")
	pair("T", "tr-out", &cfg.TrOut, "", "static_tr_out translate ruleset")
	pairDuration("k", "keepalive", &cfg.Keepalive, 0, "SIP OPTIONS keepalive interval, 0 disables")
	pairInt("m", "max-credit-time", &cfg.MaxCreditTime, 0, "max credit time in seconds, 0 = unlimited")
	pairBool("u", "no-auth", &cfg.NoAuth, false, "disable RADIUS auth entirely")
	fs.Var(&rtpProxies, "r", "rtp-proxy host:port, repeatable")
	fs.Var(&rtpProxies, "rtp-proxy", "rtp-proxy host:port, repeatable")
	fs.Var(&allowedPts, "F", "comma-separated allowed RTP payload types")
	fs.Var(&allowedPts, "allowed-pts", "comma-separated allowed RTP payload types")
	pair("R", "radius-conf", &cfg.RadiusConf, "", "path to radiusclient config")
	fs.Var(&passHeaders, "h", "SIP header name to pass through A->O, repeatable")
	fs.Var(&passHeaders, "pass-header", "SIP header name to pass through A->O, repeatable")
	pair("c", "socket", &cfg.Socket, "", "control socket path (CLI: q/l/lt/llt/d/r)")
	pairInt("M", "max-radius-clients", &cfg.MaxRadiusClient, 0, "max concurrent RADIUS clients, 0 = unlimited")
	pairBool("H", "hide-call-id", &cfg.HideCallID, false, "mangle the outbound Call-ID instead of passing it through")
	pair("C", "config", &cfg.ConfigFile, "", "config file path (recorded; no file is read)")
	pair("W", "write-config", &cfg.WriteConfig, "", "write-config path (recorded; nothing is written)")

	fs.StringVar(&cfg.AdvertiseAddr, "advertise", "", "address to advertise in SIP headers")
	fs.StringVar(&cfg.LogLevel, "loglevel", "debug", "log level (debug, info, warn, error)")

	if err := rejectUnknownLong(args, fs); err != nil {
		return nil, err
	}

	fs.SetOutput(io.Discard)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg.AcceptIPs = []string(acceptIPs)
	cfg.AllowedPts = []string(allowedPts)
	cfg.RTPProxies = []string(rtpProxies)
	for _, h := range passHeaders {
		for _, part := range strings.Split(h, ",") {
			if part = strings.TrimSpace(part); part != "" {
				cfg.PassHeaders = append(cfg.PassHeaders, part)
			}
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

// rejectUnknownLong re-scans the raw args for any "--name" or "--name=value"
// token whose name was never registered with fs. Go's flag package already
// rejects unregistered single-dash/ double-dash flags during Parse, so in
// practice this only exists to give an explicit ConfigError type (tests and
// callers can type-assert on it) instead of flag's plain fmt.Errorf.
func rejectUnknownLong(args []string, fs *flag.FlagSet) error {
	known := map[string]bool{}
	fs.VisitAll(func(f *flag.Flag) { known[f.Name] = true })

	for _, arg := range args {
		if !strings.HasPrefix(arg, "--") {
			continue
		}
		name := strings.TrimPrefix(arg, "--")
		if eq := strings.IndexByte(name, '='); eq >= 0 {
			name = name[:eq]
		}
		if !known[name] {
			return &ConfigError{Flag: arg, Reason: "unknown flag"}
		}
	}
	return nil
}

func applyEnv(cfg *Config) {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Port = p
		}
	}
	if bind := os.Getenv("BIND"); bind != "" {
		cfg.BindAddr = bind
	}
	if advertise := os.Getenv("ADVERTISE"); advertise != "" {
		cfg.AdvertiseAddr = advertise
	}
	if cfg.AdvertiseAddr == "" || !isValidAddress(cfg.AdvertiseAddr) {
		cfg.AdvertiseAddr = getPrimaryInterfaceIP()
	}
	if loglevel := os.Getenv("LOGLEVEL"); loglevel != "" {
		cfg.LogLevel = loglevel
	}
}

func isValidAddress(addr string) bool {
	if ip := net.ParseIP(addr); ip != nil {
		return true
	}
	if ips, err := net.LookupIP(addr); err == nil && len(ips) > 0 {
		return true
	}
	return false
}

func getPrimaryInterfaceIP() string {
	interfaces, err := net.Interfaces()
	if err != nil {
		return "127.0.0.1"
	}
	for _, iface := range interfaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && ipnet.IP.To4() != nil {
				return ipnet.IP.String()
			}
		}
	}
	return "127.0.0.1"
}
