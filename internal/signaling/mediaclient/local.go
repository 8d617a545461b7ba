package mediaclient

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/rtp"
	"github.com/zaf/g711"
)

// rtpCodec is the subset of static payload types this relay understands,
// grounded on the teacher's own codec table (internal/rtpmanager/media/codec.go)
// but trimmed to the one G.711 variant a local relay actually encodes for:
// PCMU, via zaf/g711's EncodeUlaw.
type rtpCodec struct {
	name string
	pt   uint8
}

var localCodecs = []rtpCodec{
	{"PCMU", 0},
}

func pickCodec(offered []string) (rtpCodec, bool) {
	for _, c := range localCodecs {
		for _, o := range offered {
			if o == strconv.Itoa(int(c.pt)) || strings.EqualFold(o, c.name) {
				return c, true
			}
		}
	}
	return rtpCodec{}, false
}

// rtpSession is one leg's local RTP endpoint: a UDP socket this process
// owns, optionally bridged to another rtpSession for relay.
type rtpSession struct {
	id     string
	conn   *net.UDPConn
	codec  rtpCodec
	ssrc   uint32
	seq    uint16
	ts     uint32
	mu     sync.Mutex
	remote *net.UDPAddr
	peer   *rtpSession
	play   context.CancelFunc
}

func (s *rtpSession) setRemote(addr *net.UDPAddr) {
	s.mu.Lock()
	s.remote = addr
	s.mu.Unlock()
}

func (s *rtpSession) getRemote() *net.UDPAddr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remote
}

func (s *rtpSession) setPeer(peer *rtpSession) {
	s.mu.Lock()
	s.peer = peer
	s.mu.Unlock()
}

func (s *rtpSession) getPeer() *rtpSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peer
}

// relayLoop forwards RTP packets arriving on this session's socket to
// whatever session it is currently bridged with. Unmarshal/Marshal round
// trip (rather than a raw byte forward) keeps the relay honest about what
// it is carrying, and gives a hook for a future transcoding step.
func (s *rtpSession) relayLoop() {
	buf := make([]byte, 1500)
	for {
		n, _, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		peer := s.getPeer()
		if peer == nil {
			continue
		}
		dest := peer.getRemote()
		if dest == nil {
			continue
		}
		var pkt rtp.Packet
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			continue
		}
		out, err := pkt.Marshal()
		if err != nil {
			continue
		}
		_, _ = peer.conn.WriteToUDP(out, dest)
	}
}

func (s *rtpSession) close() {
	s.mu.Lock()
	if s.play != nil {
		s.play()
		s.play = nil
	}
	s.mu.Unlock()
	_ = s.conn.Close()
}

// LocalTransport is the default mediaclient.Transport: it relays RTP
// between two local UDP sockets in-process instead of delegating to a
// remote RTP proxy node. The Transport interface is the contract a
// deployment's external RTP proxy fleet (-r/--rtp-proxy, cfg.RTPProxies)
// would otherwise satisfy; LocalTransport is the default implementation of
// that contract so a single switchboard process is usable standalone
// without one.
type LocalTransport struct {
	bindIP string

	mu       sync.Mutex
	sessions map[string]*rtpSession
}

// NewLocalTransport builds a LocalTransport bound to bindIP for its RTP
// sockets (the same address switchboard advertises in SDP).
func NewLocalTransport(bindIP string) *LocalTransport {
	if bindIP == "" {
		bindIP = "0.0.0.0"
	}
	return &LocalTransport{bindIP: bindIP, sessions: make(map[string]*rtpSession)}
}

func randUint32() uint32 {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0x12345678
	}
	return binary.BigEndian.Uint32(b[:])
}

func randUint16() uint16 {
	var b [2]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0
	}
	return binary.BigEndian.Uint16(b[:])
}

func (t *LocalTransport) alloc(offeredCodecs []string) (*rtpSession, *SessionResult, error) {
	c, ok := pickCodec(offeredCodecs)
	if !ok {
		if len(offeredCodecs) != 0 {
			return nil, nil, fmt.Errorf("mediaclient: no supported codec in offer %v", offeredCodecs)
		}
		c = localCodecs[0]
	}

	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP(t.bindIP), Port: 0})
	if err != nil {
		return nil, nil, fmt.Errorf("mediaclient: allocate RTP socket: %w", err)
	}

	s := &rtpSession{
		id:    uuid.New().String(),
		conn:  conn,
		codec: c,
		ssrc:  randUint32(),
		seq:   randUint16(),
	}

	t.mu.Lock()
	t.sessions[s.id] = s
	t.mu.Unlock()
	go s.relayLoop()

	localPort := conn.LocalAddr().(*net.UDPAddr).Port
	res := &SessionResult{
		SessionID:     s.id,
		LocalAddr:     t.bindIP,
		LocalPort:     localPort,
		SDPBody:       buildSDPAnswer(t.bindIP, localPort, c),
		SelectedCodec: c.name,
	}
	return s, res, nil
}

func (t *LocalTransport) get(sessionID string) (*rtpSession, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("mediaclient: no such session %s", sessionID)
	}
	return s, nil
}

// CreateSession implements Transport.
func (t *LocalTransport) CreateSession(ctx context.Context, info SessionInfo) (*SessionResult, error) {
	s, res, err := t.alloc(info.OfferedCodecs)
	if err != nil {
		return nil, err
	}
	if info.RemoteAddr != "" && info.RemotePort != 0 {
		s.setRemote(&net.UDPAddr{IP: net.ParseIP(info.RemoteAddr), Port: info.RemotePort})
	}
	slog.Debug("[LocalTransport] session created", "session_id", s.id, "call_id", info.CallID, "codec", s.codec.name)
	return res, nil
}

// CreateSessionPendingRemote implements Transport.
func (t *LocalTransport) CreateSessionPendingRemote(ctx context.Context, callID string, codecs []string) (*SessionResult, error) {
	s, res, err := t.alloc(codecs)
	if err != nil {
		return nil, err
	}
	slog.Debug("[LocalTransport] session created (pending remote)", "session_id", s.id, "call_id", callID, "codec", s.codec.name)
	return res, nil
}

// UpdateSessionRemote implements Transport.
func (t *LocalTransport) UpdateSessionRemote(ctx context.Context, sessionID, remoteAddr string, remotePort int) error {
	s, err := t.get(sessionID)
	if err != nil {
		return err
	}
	s.setRemote(&net.UDPAddr{IP: net.ParseIP(remoteAddr), Port: remotePort})
	return nil
}

// DestroySession implements Transport.
func (t *LocalTransport) DestroySession(ctx context.Context, sessionID string, reason TerminateReason) error {
	t.mu.Lock()
	s, ok := t.sessions[sessionID]
	if ok {
		delete(t.sessions, sessionID)
	}
	t.mu.Unlock()
	if !ok {
		return fmt.Errorf("mediaclient: no such session %s", sessionID)
	}
	s.close()
	return nil
}

// BridgeMedia implements Transport: it links two local sessions so each
// one's relayLoop forwards RTP to the other's current remote address.
func (t *LocalTransport) BridgeMedia(ctx context.Context, sessionAID, sessionBID string) (string, error) {
	a, err := t.get(sessionAID)
	if err != nil {
		return "", err
	}
	b, err := t.get(sessionBID)
	if err != nil {
		return "", err
	}
	a.setPeer(b)
	b.setPeer(a)
	return sessionAID + "|" + sessionBID, nil
}

// UnbridgeMedia implements Transport.
func (t *LocalTransport) UnbridgeMedia(ctx context.Context, bridgeID string) error {
	parts := strings.SplitN(bridgeID, "|", 2)
	if len(parts) != 2 {
		return fmt.Errorf("mediaclient: malformed bridge id %q", bridgeID)
	}
	if a, err := t.get(parts[0]); err == nil {
		a.setPeer(nil)
	}
	if b, err := t.get(parts[1]); err == nil {
		b.setPeer(nil)
	}
	return nil
}

// PlayAudio implements Transport: it decodes a mono 16-bit PCM WAV file,
// encodes it to the session's negotiated codec with zaf/g711, and paces it
// out as 20ms RTP frames until EOF (or a single loop, if req.Loop).
func (t *LocalTransport) PlayAudio(ctx context.Context, req PlayRequest) (<-chan PlayStatus, error) {
	s, err := t.get(req.SessionID)
	if err != nil {
		return nil, err
	}

	pcm, err := readWAVPCM(req.AudioFile)
	if err != nil {
		return nil, fmt.Errorf("mediaclient: %w", err)
	}

	payload := g711.EncodeUlaw(pcm)

	playCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.play = cancel
	s.mu.Unlock()

	statusCh := make(chan PlayStatus, 4)
	statusCh <- PlayStatus{SessionID: s.id, State: PlayStateStarted}

	go func() {
		defer close(statusCh)
		const frameBytes = 160 // 20ms of 8kHz 8-bit-per-sample G.711
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()

		for {
			for off := 0; off < len(payload); off += frameBytes {
				end := off + frameBytes
				if end > len(payload) {
					end = len(payload)
				}
				select {
				case <-playCtx.Done():
					statusCh <- PlayStatus{SessionID: s.id, State: PlayStateStopped}
					return
				case <-ticker.C:
				}
				if err := s.writeFrame(payload[off:end]); err != nil {
					statusCh <- PlayStatus{SessionID: s.id, State: PlayStateError, Error: err}
					return
				}
				statusCh <- PlayStatus{SessionID: s.id, State: PlayStateProgress}
			}
			if !req.Loop {
				break
			}
		}
		statusCh <- PlayStatus{SessionID: s.id, State: PlayStateCompleted}
		if req.OnComplete != nil {
			req.OnComplete(s.id)
		}
	}()

	return statusCh, nil
}

func (s *rtpSession) writeFrame(payload []byte) error {
	dest := s.getRemote()
	if dest == nil {
		return fmt.Errorf("session %s has no remote endpoint yet", s.id)
	}
	s.mu.Lock()
	seq := s.seq
	s.seq++
	ts := s.ts
	s.ts += uint32(len(payload))
	ssrc := s.ssrc
	s.mu.Unlock()

	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    s.codec.pt,
			SequenceNumber: seq,
			Timestamp:      ts,
			SSRC:           ssrc,
		},
		Payload: payload,
	}
	out, err := pkt.Marshal()
	if err != nil {
		return err
	}
	_, err = s.conn.WriteToUDP(out, dest)
	return err
}

// StopAudio implements Transport.
func (t *LocalTransport) StopAudio(ctx context.Context, sessionID string) error {
	s, err := t.get(sessionID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	if s.play != nil {
		s.play()
		s.play = nil
	}
	s.mu.Unlock()
	return nil
}

// Ready implements Transport: LocalTransport has no external dependency to
// go unhealthy, so it is ready as soon as it exists.
func (t *LocalTransport) Ready() bool { return true }

// Close implements Transport.
func (t *LocalTransport) Close() error {
	t.mu.Lock()
	sessions := make([]*rtpSession, 0, len(t.sessions))
	for _, s := range t.sessions {
		sessions = append(sessions, s)
	}
	t.sessions = make(map[string]*rtpSession)
	t.mu.Unlock()

	for _, s := range sessions {
		s.close()
	}
	return nil
}

var _ Transport = (*LocalTransport)(nil)
