package rtc

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dkeye/Parley/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

const channelLabel = "messages"

var ErrChannelNotOpen = errors.New("peer channel not open")

// Signal is the negotiation payload carried opaquely by the server.
type Signal struct {
	Type          string  `json:"type"`
	SDP           string  `json:"sdp,omitempty"`
	Candidate     string  `json:"candidate,omitempty"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

const (
	SignalOffer     = "offer"
	SignalAnswer    = "answer"
	SignalCandidate = "ice-candidate"
)

func DefaultWebRTCConfig(stunURLs ...string) webrtc.Configuration {
	if len(stunURLs) == 0 {
		return webrtc.Configuration{}
	}
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: stunURLs}},
	}
}

// PeerLink is one peer connection with its "messages" data channel.
type PeerLink struct {
	remote domain.UserID
	pc     *webrtc.PeerConnection

	mu        sync.Mutex
	dc        *webrtc.DataChannel
	remoteSet bool
	pending   []webrtc.ICECandidateInit
	announced bool
	outbox    []Signal

	onSignal  func(domain.UserID, Signal)
	onMessage func(domain.UserID, []byte)
	onClosed  func(domain.UserID)
}

func NewPeerLink(cfg webrtc.Configuration, remote domain.UserID) (*PeerLink, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}
	l := &PeerLink{remote: remote, pc: pc}

	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil || l.onSignal == nil {
			return
		}
		ci := cand.ToJSON()
		sig := Signal{
			Type:          SignalCandidate,
			Candidate:     ci.Candidate,
			SDPMid:        ci.SDPMid,
			SDPMLineIndex: ci.SDPMLineIndex,
		}
		l.mu.Lock()
		if !l.announced {
			l.outbox = append(l.outbox, sig)
			l.mu.Unlock()
			return
		}
		l.mu.Unlock()
		l.onSignal(remote, sig)
	})

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Debug().Str("module", "rtc").Str("user", string(remote)).Str("peer_connection_state", s.String()).Msg("peer state")
		if s == webrtc.PeerConnectionStateFailed || s == webrtc.PeerConnectionStateClosed {
			if l.onClosed != nil {
				l.onClosed(remote)
			}
		}
	})

	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != channelLabel {
			return
		}
		l.bind(dc)
	})
	return l, nil
}

func (l *PeerLink) OnSignal(fn func(domain.UserID, Signal))  { l.onSignal = fn }
func (l *PeerLink) OnMessage(fn func(domain.UserID, []byte)) { l.onMessage = fn }
func (l *PeerLink) OnClosed(fn func(domain.UserID))          { l.onClosed = fn }

// announce emits the local description, then any candidates gathered before it.
func (l *PeerLink) announce(desc Signal) {
	if l.onSignal == nil {
		return
	}
	l.onSignal(l.remote, desc)
	l.mu.Lock()
	l.announced = true
	queued := l.outbox
	l.outbox = nil
	l.mu.Unlock()
	for _, s := range queued {
		l.onSignal(l.remote, s)
	}
}

func (l *PeerLink) bind(dc *webrtc.DataChannel) {
	l.mu.Lock()
	l.dc = dc
	l.mu.Unlock()

	dc.OnOpen(func() {
		log.Info().Str("module", "rtc").Str("user", string(l.remote)).Msg("peer channel open")
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if l.onMessage != nil {
			l.onMessage(l.remote, msg.Data)
		}
	})
}

// CreateOffer opens the ordered data channel and returns the local offer.
func (l *PeerLink) CreateOffer() (Signal, error) {
	ordered := true
	dc, err := l.pc.CreateDataChannel(channelLabel, &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		return Signal{}, fmt.Errorf("create data channel: %w", err)
	}
	l.bind(dc)

	offer, err := l.pc.CreateOffer(nil)
	if err != nil {
		return Signal{}, fmt.Errorf("create offer: %w", err)
	}
	if err := l.pc.SetLocalDescription(offer); err != nil {
		return Signal{}, fmt.Errorf("set local offer: %w", err)
	}
	return Signal{Type: SignalOffer, SDP: offer.SDP}, nil
}

// AcceptOffer applies a remote offer and returns the local answer.
func (l *PeerLink) AcceptOffer(offer Signal) (Signal, error) {
	if err := l.setRemote(webrtc.SDPTypeOffer, offer.SDP); err != nil {
		return Signal{}, err
	}
	answer, err := l.pc.CreateAnswer(nil)
	if err != nil {
		return Signal{}, fmt.Errorf("create answer: %w", err)
	}
	if err := l.pc.SetLocalDescription(answer); err != nil {
		return Signal{}, fmt.Errorf("set local answer: %w", err)
	}
	return Signal{Type: SignalAnswer, SDP: answer.SDP}, nil
}

func (l *PeerLink) ApplyAnswer(answer Signal) error {
	return l.setRemote(webrtc.SDPTypeAnswer, answer.SDP)
}

func (l *PeerLink) setRemote(typ webrtc.SDPType, sdp string) error {
	if err := l.pc.SetRemoteDescription(webrtc.SessionDescription{Type: typ, SDP: sdp}); err != nil {
		return fmt.Errorf("set remote %s: %w", typ, err)
	}
	l.mu.Lock()
	l.remoteSet = true
	pending := l.pending
	l.pending = nil
	l.mu.Unlock()
	for _, ci := range pending {
		if err := l.pc.AddICECandidate(ci); err != nil {
			log.Warn().Err(err).Str("module", "rtc").Str("user", string(l.remote)).Msg("add queued candidate")
		}
	}
	return nil
}

// AddICECandidate applies a trickled candidate. Candidates that arrive before
// the remote description are queued.
func (l *PeerLink) AddICECandidate(s Signal) error {
	ci := webrtc.ICECandidateInit{Candidate: s.Candidate, SDPMid: s.SDPMid, SDPMLineIndex: s.SDPMLineIndex}
	l.mu.Lock()
	if !l.remoteSet {
		l.pending = append(l.pending, ci)
		l.mu.Unlock()
		return nil
	}
	l.mu.Unlock()
	return l.pc.AddICECandidate(ci)
}

func (l *PeerLink) IsOpen() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dc != nil && l.dc.ReadyState() == webrtc.DataChannelStateOpen
}

func (l *PeerLink) Send(frame []byte) error {
	l.mu.Lock()
	dc := l.dc
	l.mu.Unlock()
	if dc == nil || dc.ReadyState() != webrtc.DataChannelStateOpen {
		return ErrChannelNotOpen
	}
	return dc.SendText(string(frame))
}

func (l *PeerLink) Close() {
	if err := l.pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "rtc").Str("user", string(l.remote)).Msg("close error")
		return
	}
	log.Debug().Str("module", "rtc").Str("user", string(l.remote)).Msg("closed")
}
