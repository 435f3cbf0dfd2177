package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"callhub/internal/core/domain"
	"callhub/pkg/config"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

var ErrManagerClosed = errors.New("peer manager closed")

// PeerConnection is the part of *webrtc.PeerConnection the manager drives.
type PeerConnection interface {
	AddTrack(track webrtc.TrackLocal) (*webrtc.RTPSender, error)
	AddTransceiverFromKind(kind webrtc.RTPCodecType, init ...webrtc.RTPTransceiverInit) (*webrtc.RTPTransceiver, error)
	CreateOffer(options *webrtc.OfferOptions) (webrtc.SessionDescription, error)
	CreateAnswer(options *webrtc.AnswerOptions) (webrtc.SessionDescription, error)
	SetLocalDescription(desc webrtc.SessionDescription) error
	SetRemoteDescription(desc webrtc.SessionDescription) error
	AddICECandidate(candidate webrtc.ICECandidateInit) error
	OnICECandidate(f func(*webrtc.ICECandidate))
	OnTrack(f func(*webrtc.TrackRemote, *webrtc.RTPReceiver))
	OnConnectionStateChange(f func(webrtc.PeerConnectionState))
	WriteRTCP(pkts []rtcp.Packet) error
	Close() error
}

// PeerConnectionFactory opens one peer connection per remote participant.
type PeerConnectionFactory func(cfg webrtc.Configuration) (PeerConnection, error)

// Signaler carries negotiation messages back through the signaling server.
type Signaler interface {
	Signal(event string, roomID domain.RoomID, target domain.ConnectionID, payload interface{}) error
}

// NewPionFactory returns a factory backed by a pion API with the default
// codecs registered. A zero port range leaves ICE on ephemeral ports.
func NewPionFactory(portMin, portMax uint16) (PeerConnectionFactory, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}

	settingEngine := webrtc.SettingEngine{}
	if portMin > 0 && portMax > 0 {
		if err := settingEngine.SetEphemeralUDPPortRange(portMin, portMax); err != nil {
			return nil, fmt.Errorf("port range: %w", err)
		}
	}

	api := webrtc.NewAPI(webrtc.WithMediaEngine(mediaEngine), webrtc.WithSettingEngine(settingEngine))
	return func(cfg webrtc.Configuration) (PeerConnection, error) {
		return api.NewPeerConnection(cfg)
	}, nil
}

// ICEServers converts the static STUN/TURN config into pion's shape.
func ICEServers(servers []config.ICEServer) []webrtc.ICEServer {
	out := make([]webrtc.ICEServer, 0, len(servers))
	for _, s := range servers {
		server := webrtc.ICEServer{URLs: append([]string(nil), s.URLs...)}
		if s.Username != "" {
			server.Username = s.Username
			server.Credential = s.Credential
			server.CredentialType = webrtc.ICECredentialTypePassword
		}
		out = append(out, server)
	}
	return out
}

// TrackSink receives every RTP packet read from a remote participant.
type TrackSink func(from domain.ConnectionID, track *webrtc.TrackRemote, pkt *rtp.Packet)

type ManagerOptions struct {
	ICEServers []webrtc.ICEServer
	// Tracks are added to every new peer connection. With none, offers are
	// receive-only for audio and video.
	Tracks  []webrtc.TrackLocal
	Factory PeerConnectionFactory
	Sink    TrackSink
}

type peer struct {
	id        domain.ConnectionID
	pc        PeerConnection
	remoteSet bool
	pending   []webrtc.ICECandidateInit
	packets   atomic.Uint64
}

// Manager owns one peer connection per remote participant of the room the
// client is in. It is a plain value: run one per call session.
type Manager struct {
	signaler Signaler
	factory  PeerConnectionFactory
	config   webrtc.Configuration
	tracks   []webrtc.TrackLocal
	sink     TrackSink
	logger   *zap.SugaredLogger

	mu     sync.Mutex
	self   domain.ConnectionID
	roomID domain.RoomID
	peers  map[domain.ConnectionID]*peer
	// candidates that raced ahead of the offer creating their peer
	early  map[domain.ConnectionID][]webrtc.ICECandidateInit
	closed bool
}

func NewManager(signaler Signaler, opts ManagerOptions, logger *zap.SugaredLogger) (*Manager, error) {
	factory := opts.Factory
	if factory == nil {
		var err error
		if factory, err = NewPionFactory(0, 0); err != nil {
			return nil, err
		}
	}

	return &Manager{
		signaler: signaler,
		factory:  factory,
		config: webrtc.Configuration{
			ICEServers:   opts.ICEServers,
			SDPSemantics: webrtc.SDPSemanticsUnifiedPlan,
		},
		tracks: opts.Tracks,
		sink:   opts.Sink,
		logger: logger,
		peers:  make(map[domain.ConnectionID]*peer),
		early:  make(map[domain.ConnectionID][]webrtc.ICECandidateInit),
	}, nil
}

// Self returns the connection id the server assigned to this client.
func (m *Manager) Self() domain.ConnectionID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.self
}

func (m *Manager) RoomID() domain.RoomID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.roomID
}

// Peers lists the remote participants with an open peer connection.
func (m *Manager) Peers() []domain.ConnectionID {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]domain.ConnectionID, 0, len(m.peers))
	for id := range m.peers {
		ids = append(ids, id)
	}
	return ids
}

// PacketsReceived reports the RTP packets read so far from one participant.
func (m *Manager) PacketsReceived(id domain.ConnectionID) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.peers[id]; ok {
		return p.packets.Load()
	}
	return 0
}

// HandleMessage applies one server frame. Joiners wait for offers; members
// already in the room offer to every newcomer.
func (m *Manager) HandleMessage(msg *domain.Message) error {
	switch msg.Event {
	case domain.EventConnected:
		var p domain.ConnectedPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return fmt.Errorf("decode %s: %w", msg.Event, err)
		}
		m.mu.Lock()
		m.self = p.ConnectionID
		m.mu.Unlock()
		return nil

	case domain.EventJoinedRoom:
		m.mu.Lock()
		m.roomID = msg.RoomID
		m.mu.Unlock()
		return nil

	case domain.EventUserJoined:
		var p domain.UserJoinedPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return fmt.Errorf("decode %s: %w", msg.Event, err)
		}
		return m.offer(p.Participant.ConnectionID)

	case domain.EventOffer:
		var desc webrtc.SessionDescription
		if err := json.Unmarshal(msg.Payload, &desc); err != nil {
			return fmt.Errorf("decode %s: %w", msg.Event, err)
		}
		return m.answer(msg.From, desc)

	case domain.EventAnswer:
		var desc webrtc.SessionDescription
		if err := json.Unmarshal(msg.Payload, &desc); err != nil {
			return fmt.Errorf("decode %s: %w", msg.Event, err)
		}
		return m.acceptAnswer(msg.From, desc)

	case domain.EventICECandidate:
		var candidate webrtc.ICECandidateInit
		if err := json.Unmarshal(msg.Payload, &candidate); err != nil {
			return fmt.Errorf("decode %s: %w", msg.Event, err)
		}
		return m.addCandidate(msg.From, candidate)

	case domain.EventUserLeft:
		var p domain.UserLeftPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return fmt.Errorf("decode %s: %w", msg.Event, err)
		}
		m.ClosePeer(p.ConnectionID)
		return nil

	case domain.EventCallEnded:
		m.LeaveRoom()
		return nil

	case domain.EventJoinRequest:
		var p domain.JoinRequestPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return fmt.Errorf("decode %s: %w", msg.Event, err)
		}
		m.logger.Infow("join request waiting for approval",
			"connection_id", p.ConnectionID,
			"user_id", p.UserID,
			"user_name", p.UserName,
		)
		return nil

	case domain.EventWaiting, domain.EventJoinDenied, domain.EventJoinCancelled,
		domain.EventAudioToggled, domain.EventVideoToggled:
		m.logger.Infow("room event", "event", msg.Event, "room_id", msg.RoomID, "payload", string(msg.Payload))
		return nil

	case domain.EventError:
		var p domain.ErrorPayload
		_ = json.Unmarshal(msg.Payload, &p)
		m.logger.Warnw("signaling error", "code", p.Code, "message", p.Message)
		return nil
	}
	return nil
}

func (m *Manager) offer(remote domain.ConnectionID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := m.peerLocked(remote)
	if err != nil {
		return err
	}
	if len(m.tracks) == 0 {
		for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
			if _, err := p.pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
				Direction: webrtc.RTPTransceiverDirectionRecvonly,
			}); err != nil {
				return m.failLocked(p, fmt.Errorf("add %s transceiver: %w", kind, err))
			}
		}
	}

	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return m.failLocked(p, fmt.Errorf("create offer: %w", err))
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return m.failLocked(p, fmt.Errorf("set local offer: %w", err))
	}

	m.logger.Debugw("sending offer", "room_id", m.roomID, "target", remote)
	return m.signaler.Signal(domain.EventOffer, m.roomID, remote, offer)
}

func (m *Manager) answer(remote domain.ConnectionID, offer webrtc.SessionDescription) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := m.peerLocked(remote)
	if err != nil {
		return err
	}
	if err := m.setRemoteLocked(p, offer); err != nil {
		return m.failLocked(p, err)
	}

	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return m.failLocked(p, fmt.Errorf("create answer: %w", err))
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return m.failLocked(p, fmt.Errorf("set local answer: %w", err))
	}

	m.logger.Debugw("sending answer", "room_id", m.roomID, "target", remote)
	return m.signaler.Signal(domain.EventAnswer, m.roomID, remote, answer)
}

func (m *Manager) acceptAnswer(remote domain.ConnectionID, answer webrtc.SessionDescription) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.peers[remote]
	if !ok {
		m.logger.Debugw("answer for unknown peer", "from", remote)
		return nil
	}
	if err := m.setRemoteLocked(p, answer); err != nil {
		return m.failLocked(p, err)
	}
	return nil
}

// addCandidate applies a remote candidate, holding it back until the remote
// description is in place.
func (m *Manager) addCandidate(remote domain.ConnectionID, candidate webrtc.ICECandidateInit) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.peers[remote]
	if !ok {
		if m.closed {
			return nil
		}
		m.early[remote] = append(m.early[remote], candidate)
		return nil
	}
	if !p.remoteSet {
		p.pending = append(p.pending, candidate)
		return nil
	}
	if err := p.pc.AddICECandidate(candidate); err != nil {
		return fmt.Errorf("add candidate from %s: %w", remote, err)
	}
	return nil
}

func (m *Manager) setRemoteLocked(p *peer, desc webrtc.SessionDescription) error {
	if err := p.pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("set remote %s: %w", desc.Type, err)
	}
	p.remoteSet = true

	pending := p.pending
	p.pending = nil
	for _, c := range pending {
		if err := p.pc.AddICECandidate(c); err != nil {
			m.logger.Warnw("failed to apply queued candidate", "peer", p.id, "error", err)
		}
	}
	return nil
}

// peerLocked returns the peer for remote, opening a connection on first use.
func (m *Manager) peerLocked(remote domain.ConnectionID) (*peer, error) {
	if m.closed {
		return nil, ErrManagerClosed
	}
	if p, ok := m.peers[remote]; ok {
		return p, nil
	}

	pc, err := m.factory(m.config)
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}
	p := &peer{id: remote, pc: pc, pending: m.early[remote]}
	delete(m.early, remote)

	for _, track := range m.tracks {
		if _, err := pc.AddTrack(track); err != nil {
			pc.Close()
			return nil, fmt.Errorf("add track %s: %w", track.ID(), err)
		}
	}

	roomID := m.roomID
	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		if err := m.signaler.Signal(domain.EventICECandidate, roomID, remote, c.ToJSON()); err != nil {
			m.logger.Warnw("failed to relay candidate", "target", remote, "error", err)
		}
	})
	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		m.logger.Infow("remote track started",
			"from", remote,
			"track_id", track.ID(),
			"codec", track.Codec().MimeType,
		)
		if track.Kind() == webrtc.RTPCodecTypeVideo {
			m.requestKeyframe(p, track)
		}
		go m.readTrack(p, track)
	})
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		m.logger.Infow("peer connection state changed", "peer", remote, "state", state)
		if state == webrtc.PeerConnectionStateFailed {
			m.closeIf(p)
		}
	})

	m.peers[remote] = p
	return p, nil
}

func (m *Manager) requestKeyframe(p *peer, track *webrtc.TrackRemote) {
	err := p.pc.WriteRTCP([]rtcp.Packet{&rtcp.PictureLossIndication{MediaSSRC: uint32(track.SSRC())}})
	if err != nil {
		m.logger.Debugw("keyframe request failed", "peer", p.id, "error", err)
	}
}

func (m *Manager) readTrack(p *peer, track *webrtc.TrackRemote) {
	buf := make([]byte, 1500)
	pkt := &rtp.Packet{}
	for {
		n, _, err := track.Read(buf)
		if err != nil {
			m.logger.Debugw("remote track ended", "peer", p.id, "track_id", track.ID(), "error", err)
			return
		}
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			m.logger.Warnw("error unmarshaling RTP packet", "peer", p.id, "error", err)
			continue
		}
		if c := p.packets.Add(1); c%500 == 0 {
			m.logger.Debugw("receiving media", "peer", p.id, "track_id", track.ID(), "packets", c)
		}
		if m.sink != nil {
			m.sink(p.id, track, pkt)
		}
	}
}

// failLocked tears down a peer whose negotiation broke and returns err.
func (m *Manager) failLocked(p *peer, err error) error {
	delete(m.peers, p.id)
	if cerr := p.pc.Close(); cerr != nil {
		m.logger.Debugw("close after failed negotiation", "peer", p.id, "error", cerr)
	}
	return err
}

// closeIf closes p only if it is still the registered peer for its id.
func (m *Manager) closeIf(p *peer) {
	m.mu.Lock()
	if m.peers[p.id] != p {
		m.mu.Unlock()
		return
	}
	delete(m.peers, p.id)
	m.mu.Unlock()
	m.release(p)
}

// ClosePeer tears down the connection to one participant.
func (m *Manager) ClosePeer(id domain.ConnectionID) {
	m.mu.Lock()
	p, ok := m.peers[id]
	delete(m.peers, id)
	delete(m.early, id)
	m.mu.Unlock()

	if ok {
		m.release(p)
	}
}

// LeaveRoom drops every peer connection of the current room. The manager
// stays usable for the next join.
func (m *Manager) LeaveRoom() {
	m.closeAll(false)
}

// Close tears down every peer connection and refuses new ones.
func (m *Manager) Close() {
	m.closeAll(true)
}

func (m *Manager) closeAll(final bool) {
	m.mu.Lock()
	peers := make([]*peer, 0, len(m.peers))
	for _, p := range m.peers {
		peers = append(peers, p)
	}
	m.peers = make(map[domain.ConnectionID]*peer)
	m.early = make(map[domain.ConnectionID][]webrtc.ICECandidateInit)
	m.roomID = ""
	if final {
		m.closed = true
	}
	m.mu.Unlock()

	for _, p := range peers {
		m.release(p)
	}
}

func (m *Manager) release(p *peer) {
	if err := p.pc.Close(); err != nil {
		m.logger.Warnw("failed to close peer connection", "peer", p.id, "error", err)
		return
	}
	m.logger.Infow("peer connection closed", "peer", p.id)
}
