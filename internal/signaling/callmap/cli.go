package callmap

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/sebas/switchboard/internal/signaling/b2bua"
)

// startCLI listens on a UNIX domain socket at path (an optional "unix:"
// prefix is stripped) and serves one connection at a time, line-oriented,
// dispatching the commands in spec §4.8/§6: q, l, lt, llt, d <call-id|*>,
// r <id>. Grounded on the teacher's api/server.go request-handling shape
// (parse request, dispatch, write response) with net.Conn read/write in
// place of net/http.
func (m *CallMap) startCLI(path string) error {
	path = strings.TrimPrefix(path, "unix:")
	ln, err := net.Listen("unix", path)
	if err != nil {
		return fmt.Errorf("listen %s: %w", path, err)
	}

	go m.acceptCLI(ln)
	return nil
}

func (m *CallMap) acceptCLI(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			slog.Error("[CallMap] control socket accept failed", "error", err)
			return
		}
		m.serveCLIConn(conn)
	}
}

// serveCLIConn blocks until the peer disconnects, since the control socket
// is documented as one connection at a time; commands that touch the
// registry are placed onto the reactor via ThreadBridge since this runs on
// its own goroutine, not the dispatcher's owner goroutine.
func (m *CallMap) serveCLIConn(conn net.Conn) {
	defer conn.Close()
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		respCh := make(chan string, 1)
		m.disp.Threads.CallFromThread(func() {
			respCh <- m.dispatchCLI(line)
		})
		resp := <-respCh
		if _, err := conn.Write([]byte(resp)); err != nil {
			return
		}
		if line == "q" {
			return
		}
	}
}

// dispatchCLI runs on the dispatcher's owner goroutine (via ThreadBridge)
// and is the only place CLI commands are allowed to touch the registry.
func (m *CallMap) dispatchCLI(line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ""
	}

	switch fields[0] {
	case "q":
		return "bye\n"
	case "l":
		return m.Summary()
	case "lt":
		return m.listTimeouts(false)
	case "llt":
		return m.listTimeouts(true)
	case "d":
		if len(fields) < 2 {
			return "usage: d <call-id|*>\n"
		}
		return m.disconnect(fields[1])
	case "r":
		if len(fields) < 2 {
			return "usage: r <id>\n"
		}
		return m.rewind(fields[1])
	default:
		return fmt.Sprintf("unknown command %q\n", fields[0])
	}
}

func (m *CallMap) listTimeouts(long bool) string {
	out := ""
	for _, c := range m.Controllers() {
		if !long {
			out += fmt.Sprintf("%d %s\n", c.ID, c.CID)
			continue
		}
		out += fmt.Sprintf("%d %s %s->%s state=%s\n", c.ID, c.CID, c.Cli, c.Cld, c.State())
	}
	return out
}

func (m *CallMap) disconnect(target string) string {
	if target == "*" {
		for _, c := range m.Controllers() {
			hangupController(c)
		}
		return "disconnected all\n"
	}
	c := m.ByCallID(target)
	if c == nil {
		return fmt.Sprintf("no such call %q\n", target)
	}
	hangupController(c)
	return fmt.Sprintf("disconnected %s\n", target)
}

func hangupController(c *b2bua.Controller) {
	if a := c.LegA(); a != nil {
		_ = a.Hangup(context.Background(), b2bua.TerminationCauseNormal)
	}
	if o := c.LegO(); o != nil {
		_ = o.Hangup(context.Background(), b2bua.TerminationCauseNormal)
	}
}

// rewindBackdate is the §4.8 "r" command's fixed back-dating window: the
// disconnect is accounted as though it happened 60s earlier, shortening the
// billed duration.
const rewindBackdate = 60 * time.Second

// rewind implements the CLI "r <id>" command: disconnect a proxied call
// with its accounting disconnect timestamp back-dated by rewindBackdate, so
// the billed duration comes out shorter than the call's real lifetime. Only
// meaningful for proxied calls; non-proxied calls are rejected since there
// is no accounting leg for the back-dating to affect.
func (m *CallMap) rewind(idStr string) string {
	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		return fmt.Sprintf("bad id %q\n", idStr)
	}
	for _, c := range m.Controllers() {
		if c.ID != id {
			continue
		}
		if !c.Proxied {
			return fmt.Sprintf("call %d is not proxied, refusing rewind\n", id)
		}
		backdated := time.Now().Add(-rewindBackdate)
		if c.AcctA != nil {
			c.AcctA.Disconnect(backdated)
		}
		if c.AcctO != nil {
			c.AcctO.Disconnect(backdated)
		}
		hangupController(c)
		return fmt.Sprintf("rewound call %d by %s\n", id, rewindBackdate)
	}
	return fmt.Sprintf("no such call id %d\n", id)
}
