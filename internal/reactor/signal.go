package reactor

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// SignalSub is a registered signal subscriber. It is returned by
// SignalService.Register and passed back to Unregister.
type SignalSub struct {
	signum syscall.Signal
	fn     func(syscall.Signal)
	id     uint64
}

// SignalService is the user-facing signal-handler registration surface atop
// a Dispatcher. The OS delivers signals asynchronously via os/signal.Notify
// onto a channel; dispatch happens synchronously on the owner thread inside
// the Dispatcher loop, so subscriber callbacks never race with the rest of
// the reactor.
type SignalService struct {
	disp *Dispatcher

	mu    sync.Mutex
	subs  map[syscall.Signal][]*SignalSub
	idGen uint64

	notifyCh chan os.Signal
	pending  chan syscall.Signal // async-signal-safe enqueue target
}

// NewSignalService constructs a SignalService bound to a Dispatcher. The
// pending channel is generously buffered: os/signal.Notify already
// guarantees non-blocking delivery to notifyCh, and the internal relay
// goroutine below only ever does a channel send, so it cannot deadlock the
// real signal handler the way a user-installed C handler could.
func NewSignalService(d *Dispatcher) *SignalService {
	s := &SignalService{
		disp:     d,
		subs:     make(map[syscall.Signal][]*SignalSub),
		notifyCh: make(chan os.Signal, 64),
		pending:  make(chan syscall.Signal, 256),
	}
	go s.relay()
	return s
}

// relay forwards OS-delivered signals into the pending queue and wakes the
// pacer, mirroring the async handler's "push signum, wake pacer" contract.
func (s *SignalService) relay() {
	for sig := range s.notifyCh {
		if uSig, ok := sig.(syscall.Signal); ok {
			select {
			case s.pending <- uSig:
			default:
				// Pending queue saturated; drop rather than block the relay.
				// A saturated 256-deep signal queue indicates a runaway
				// sender, not legitimate traffic.
			}
			s.disp.pacer.wake()
		}
	}
}

// Register subscribes callback to signum. If signum has no existing
// subscriber, the OS handler is installed (via os/signal.Notify). Multiple
// subscribers per signum are allowed; all are invoked at dispatch time, in
// registration order.
func (s *SignalService) Register(signum syscall.Signal, fn func(syscall.Signal)) *SignalSub {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.idGen++
	sub := &SignalSub{signum: signum, fn: fn, id: s.idGen}

	first := len(s.subs[signum]) == 0
	s.subs[signum] = append(s.subs[signum], sub)
	if first {
		signal.Notify(s.notifyCh, signum)
	}
	return sub
}

// Unregister removes sub. If it was the last subscriber for its signum, the
// default disposition is restored.
func (s *SignalService) Unregister(sub *SignalSub) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.subs[sub.signum]
	for i, cur := range list {
		if cur.id == sub.id {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(s.subs, sub.signum)
		signal.Reset(sub.signum)
	} else {
		s.subs[sub.signum] = list
	}
}

// dispatch drains the pending queue FIFO, invoking every current subscriber
// for each popped signum. No de-duplication is performed: a signum
// delivered N times in rapid succession invokes subscribers N times, all
// within the same drain pass.
func (s *SignalService) dispatch() (stop bool) {
	for {
		var sig syscall.Signal
		select {
		case sig = <-s.pending:
		default:
			return false
		}

		s.mu.Lock()
		subs := append([]*SignalSub(nil), s.subs[sig]...)
		s.mu.Unlock()

		for _, sub := range subs {
			if err := s.invoke(sub, sig); err != nil {
				if err == FatalExit {
					panic(FatalExit)
				}
			}
			if s.disp.stopRequested.Load() {
				return true
			}
		}
	}
}

func (s *SignalService) invoke(sub *SignalSub, sig syscall.Signal) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if r == FatalExit {
				err = FatalExit
				return
			}
			s.disp.logCallbackError("signal", r)
		}
	}()
	sub.fn(sig)
	return nil
}
