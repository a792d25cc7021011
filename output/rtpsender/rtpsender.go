// Package rtpsender provides a sink that sends G.711 audio as RTP over UDP.
package rtpsender

import (
	"fmt"
	"math/rand/v2"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"

	"github.com/ivgotcrazy/jukey-sub001/capability"
	"github.com/ivgotcrazy/jukey-sub001/component"
	"github.com/ivgotcrazy/jukey-sub001/element"
	"github.com/ivgotcrazy/jukey-sub001/errors"
	"github.com/ivgotcrazy/jukey-sub001/msgbus"
	"github.com/ivgotcrazy/jukey-sub001/pin"
)

// Component is the component ID of the RTP sender
const Component = "rtp-sender"

// Property keys
const (
	PropAddr        = "addr"
	PropSSRC        = "ssrc"
	PropMTU         = "mtu"
	PropPayloadType = "payload_type"
)

const (
	defaultMTU    = 1200
	rtpHeaderSize = 12
	clockRate     = 8000
)

// Static payload types of RFC 3551
const (
	PayloadTypePCMU uint8 = 0
	PayloadTypePCMA uint8 = 8
)

// InputCaps is the G.711 audio the sender accepts
var InputCaps = capability.Set{
	MediaType:   capability.MediaTypeAudio,
	Codecs:      []capability.Codec{capability.CodecPCMU, capability.CodecPCMA},
	Channels:    []int{1},
	SampleBits:  []int{8},
	SampleRates: []int{clockRate},
}

// Stats counts what the sender put on the wire
type Stats struct {
	Packets uint64
	Bytes   uint64
	Dropped uint64
	Errors  uint64
}

// Sender packetizes frames from its "in" pin and writes them to a UDP peer
type Sender struct {
	*element.Base

	addr        string
	ssrc        uint32
	mtu         int
	payloadType int // -1 derives it from the negotiated codec

	mu        sync.Mutex
	conn      net.Conn
	payloader codecs.G711Payloader
	sequencer rtp.Sequencer
	tsBase    uint32
	marker    bool
	paused    atomic.Bool

	packets atomic.Uint64
	bytes   atomic.Uint64
	dropped atomic.Uint64
	errs    atomic.Uint64
}

// New is the factory of Component
func New(deps component.Dependencies) (element.Element, error) {
	s := &Sender{}
	s.Base = element.NewBase(element.Descriptor{
		Name:      "rtp-sender",
		MainType:  element.MainTypeSink,
		SubType:   element.RoleSender,
		MediaType: capability.MediaTypeAudio,
	}, s, deps.GetLoggerWithComponent("rtpsender"))
	return s, nil
}

// Register registers the RTP sender
func Register(registry *component.Registry) error {
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        Component,
		Factory:     New,
		MainType:    element.MainTypeSink,
		SubType:     element.RoleSender,
		MediaType:   capability.MediaTypeAudio,
		Description: "RTP/UDP sender for G.711 audio",
		Version:     "1.0.0",
	})
}

// DoInit reads the peer and packet settings and creates the "in" pin
func (s *Sender) DoInit(props element.Properties) error {
	s.addr = props.GetString(PropAddr, "")
	if s.addr == "" {
		return errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrMissingConfig, PropAddr),
			"RTPSender", "DoInit", "addr property")
	}
	if _, _, err := net.SplitHostPort(s.addr); err != nil {
		return errors.WrapInvalid(fmt.Errorf("%w: addr %q: %v", errors.ErrInvalidConfig, s.addr, err),
			"RTPSender", "DoInit", "addr property")
	}

	s.mtu = props.GetInt(PropMTU, defaultMTU)
	if s.mtu <= rtpHeaderSize || s.mtu > 65535 {
		return errors.WrapInvalid(fmt.Errorf("%w: mtu %d", errors.ErrInvalidConfig, s.mtu),
			"RTPSender", "DoInit", "mtu property")
	}

	s.payloadType = props.GetInt(PropPayloadType, -1)
	if s.payloadType > 127 {
		return errors.WrapInvalid(fmt.Errorf("%w: payload_type %d", errors.ErrInvalidConfig, s.payloadType),
			"RTPSender", "DoInit", "payload_type property")
	}

	ssrc := props.GetInt(PropSSRC, 0)
	if ssrc < 0 || int64(ssrc) > int64(^uint32(0)) {
		return errors.WrapInvalid(fmt.Errorf("%w: ssrc %d", errors.ErrInvalidConfig, ssrc),
			"RTPSender", "DoInit", "ssrc property")
	}
	s.ssrc = uint32(ssrc)
	if s.ssrc == 0 {
		s.ssrc = uuid.New().ID()
	}

	_, err := s.AddSinkPin("in", InputCaps)
	return err
}

// DoStart opens the UDP socket
func (s *Sender) DoStart() error {
	conn, err := net.Dial("udp", s.addr)
	if err != nil {
		return errors.WrapTransient(err, "RTPSender", "DoStart", "dial "+s.addr)
	}

	s.mu.Lock()
	s.conn = conn
	s.sequencer = rtp.NewRandomSequencer()
	s.tsBase = rand.Uint32()
	s.marker = true
	s.mu.Unlock()
	s.paused.Store(false)

	s.Logger().Info("RTP sender started", "addr", s.addr, "ssrc", s.ssrc)
	return nil
}

// DoPause drops frames until resumed
func (s *Sender) DoPause() error {
	s.paused.Store(true)
	return nil
}

// DoResume resumes sending; the next packet starts a new talkspurt
func (s *Sender) DoResume() error {
	s.mu.Lock()
	s.marker = true
	s.mu.Unlock()
	s.paused.Store(false)
	return nil
}

// DoStop closes the socket
func (s *Sender) DoStop() error {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if conn == nil {
		return nil
	}
	st := s.Stats()
	s.Logger().Info("RTP sender stopped", "packets", st.Packets, "bytes", st.Bytes, "errors", st.Errors)
	if err := conn.Close(); err != nil {
		return errors.Wrap(err, "RTPSender", "DoStop", "close socket")
	}
	return nil
}

// OnSinkPinData sends one frame as one or more RTP packets. The RTP timestamp is
// derived from the frame timestamp at the 8kHz clock.
func (s *Sender) OnSinkPinData(p *pin.SinkPin, data pin.Data) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil || s.paused.Load() {
		s.dropped.Add(1)
		return nil
	}

	pt := s.payloadTypeFor(p.Capability().Codec)
	ts := s.tsBase + uint32(data.Timestamp*clockRate/time.Second)
	for _, chunk := range s.payloader.Payload(uint16(s.mtu-rtpHeaderSize), data.Payload) {
		pkt := rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				Marker:         s.marker,
				PayloadType:    pt,
				SequenceNumber: s.sequencer.NextSequenceNumber(),
				Timestamp:      ts,
				SSRC:           s.ssrc,
			},
			Payload: chunk,
		}
		s.marker = false
		// one G.711 byte per sample
		ts += uint32(len(chunk))

		raw, err := pkt.Marshal()
		if err != nil {
			s.errs.Add(1)
			return errors.WrapInvalid(err, "RTPSender", "OnSinkPinData", "marshal packet")
		}
		if _, err := s.conn.Write(raw); err != nil {
			s.errs.Add(1)
			return errors.WrapTransient(err, "RTPSender", "OnSinkPinData", "write packet")
		}
		s.packets.Add(1)
		s.bytes.Add(uint64(len(raw)))
	}
	return nil
}

// OnSinkPinMsg marks the next packet as a talkspurt start on SET_STREAM and
// announces the consumed stream.
func (s *Sender) OnSinkPinMsg(p *pin.SinkPin, msg pin.Msg) error {
	var notify msgbus.MsgType
	switch msg.Type {
	case pin.MsgSetStream:
		s.mu.Lock()
		s.marker = true
		s.mu.Unlock()
		notify = msgbus.MsgAddElementStream
	case pin.MsgEndStream:
		notify = msgbus.MsgDelElementStream
	default:
		return errors.ErrNoProc
	}
	s.Post(notify, msgbus.ElementStream{
		StreamID: msg.StreamID,
		Element:  s.Name(),
		Pin:      p.Name(),
		Role:     msgbus.StreamConsumer,
	})
	return nil
}

// SSRC returns the synchronization source of the outgoing stream
func (s *Sender) SSRC() uint32 {
	return s.ssrc
}

// Stats returns the sender counters
func (s *Sender) Stats() Stats {
	return Stats{
		Packets: s.packets.Load(),
		Bytes:   s.bytes.Load(),
		Dropped: s.dropped.Load(),
		Errors:  s.errs.Load(),
	}
}

func (s *Sender) payloadTypeFor(c capability.Codec) uint8 {
	if s.payloadType >= 0 {
		return uint8(s.payloadType)
	}
	if c == capability.CodecPCMA {
		return PayloadTypePCMA
	}
	return PayloadTypePCMU
}
