package reactor

// ThreadBridge lets foreign goroutines submit a callback for execution on
// the Dispatcher's owner goroutine. Go's buffered channel plus select
// already gives the wait-free-enough submission and FIFO-per-sender
// ordering the data model asks for; there is no need for a hand-rolled MPSC
// ring the way a native reactor without channels would need one.
type ThreadBridge struct {
	disp  *Dispatcher
	queue chan func()
}

// NewThreadBridge constructs a ThreadBridge bound to a Dispatcher. The
// queue is large but bounded: a truly unbounded submitter would be a bug
// worth surfacing as backpressure rather than unbounded memory growth.
func NewThreadBridge(d *Dispatcher) *ThreadBridge {
	return &ThreadBridge{
		disp:  d,
		queue: make(chan func(), 4096),
	}
}

// CallFromThread submits fn for execution on the owner goroutine. It never
// drops a submission: if the queue is full it blocks the caller rather than
// silently discarding work, matching "the bridge never drops a submission
// silently."
func (b *ThreadBridge) CallFromThread(fn func()) {
	b.queue <- fn
	b.disp.pacer.wake()
}

// dispatch drains everything currently queued, invoking each in submission
// order. Called once per loop iteration, after signals and timers.
func (b *ThreadBridge) dispatch() (stop bool) {
	for {
		select {
		case fn := <-b.queue:
			if err := b.invoke(fn); err != nil {
				if err == FatalExit {
					panic(FatalExit)
				}
			}
			if b.disp.stopRequested.Load() {
				return true
			}
		default:
			return false
		}
	}
}

func (b *ThreadBridge) invoke(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if r == FatalExit {
				err = FatalExit
				return
			}
			b.disp.logCallbackError("cross-thread", r)
		}
	}()
	fn()
	return nil
}
