package element

import (
	"context"

	"github.com/ivgotcrazy/jukey-sub001/capability"
	"github.com/ivgotcrazy/jukey-sub001/msgbus"
	"github.com/ivgotcrazy/jukey-sub001/pin"
)

// Optional hooks a concrete element implements to specialize Base. Base discovers
// them by type assertion on the value passed to NewBase.

// Initializer creates the element's pins and reads its properties
type Initializer interface {
	DoInit(props Properties) error
}

// Starter runs before the element enters RUNNING
type Starter interface {
	DoStart() error
}

// Pauser runs before the element enters PAUSED
type Pauser interface {
	DoPause() error
}

// Resumer runs before the element leaves PAUSED
type Resumer interface {
	DoResume() error
}

// Stopper runs before the element enters STOPPED
type Stopper interface {
	DoStop() error
}

// Destroyer releases element resources after its pins are disconnected
type Destroyer interface {
	DoDestroy()
}

// SinkDataHandler consumes data arriving on a sink pin. It must not block
// indefinitely; blocking work belongs on the element's own goroutine.
type SinkDataHandler interface {
	OnSinkPinData(p *pin.SinkPin, data pin.Data) error
}

// SinkNegotiatedHandler reacts to a capability proposed for a sink pin. Returning an
// error rejects the capability. Two-phase elements narrow and negotiate their source
// pins from here.
type SinkNegotiatedHandler interface {
	OnSinkPinNegotiated(p *pin.SinkPin, c capability.Capability) error
}

// SinkConnectHandler observes sink pin connection changes
type SinkConnectHandler interface {
	OnSinkPinConnectState(p *pin.SinkPin, connected bool)
}

// SinkMsgHandler handles forward pin messages. Returning errors.ErrNoProc applies
// the default propagation to the element's source pins.
type SinkMsgHandler interface {
	OnSinkPinMsg(p *pin.SinkPin, msg pin.Msg) error
}

// SinkCapValidator vetoes capabilities before negotiation commits them
type SinkCapValidator interface {
	ValidateSinkPinCap(p *pin.SinkPin, c capability.Capability) error
}

// SrcNegotiatedHandler observes the capability fixed on a source pin. The zero
// capability signals that the last sink went away.
type SrcNegotiatedHandler interface {
	OnSrcPinNegotiated(p *pin.SourcePin, c capability.Capability)
}

// SrcConnectHandler replaces the default reaction to source pin connection changes
type SrcConnectHandler interface {
	OnSrcPinConnectState(p *pin.SourcePin, connected bool)
}

// SrcMsgHandler handles backward pin messages. Returning errors.ErrNoProc applies
// the default behavior: NEGOTIATE renegotiates the pin, other types propagate
// upstream.
type SrcMsgHandler interface {
	OnSrcPinMsg(p *pin.SourcePin, msg pin.Msg) error
}

// PipelineMsgPreprocessor sees pipeline messages before the base element. Returning
// errors.ErrNoProc hands the message to the default demultiplexing.
type PipelineMsgPreprocessor interface {
	PreProcPipelineMsg(ctx context.Context, msg msgbus.Msg) error
}
