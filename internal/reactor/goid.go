package reactor

import (
	"bytes"
	"runtime"
	"strconv"
)

// goroutineID extracts the calling goroutine's id from its stack trace
// header ("goroutine 123 [running]:"). The runtime exposes no public API
// for this; parsing the trace is the standard workaround used wherever Go
// code needs to assert "this call happened on thread X" the way native
// reactors assert owner_thread_id. It is used here only to record the
// loop's owner goroutine and for the ProgrammerError diagnostic on
// Timer.Cancel misuse, never for correctness-critical control flow.
func goroutineID() int64 {
	buf := make([]byte, 64)
	n := runtime.Stack(buf, false)
	buf = buf[:n]

	const prefix = "goroutine "
	if !bytes.HasPrefix(buf, []byte(prefix)) {
		return -1
	}
	buf = buf[len(prefix):]
	end := bytes.IndexByte(buf, ' ')
	if end < 0 {
		return -1
	}
	id, err := strconv.ParseInt(string(buf[:end]), 10, 64)
	if err != nil {
		return -1
	}
	return id
}
