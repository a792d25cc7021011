package pipeline

import (
	"context"
	"log/slog"

	"github.com/ivgotcrazy/jukey-sub001/element"
	"github.com/ivgotcrazy/jukey-sub001/msgbus"
	"github.com/ivgotcrazy/jukey-sub001/syncmgr"
)

// elementHost is the view of the pipeline handed to one element
type elementHost struct {
	p    *Pipeline
	name string
}

var _ element.Host = (*elementHost)(nil)

func (h *elementHost) Name() string { return h.p.name }

func (h *elementHost) Post(msg msgbus.Msg) error {
	if msg.Src == "" {
		msg.Src = h.name
	}
	return h.p.PostMsg(msg)
}

func (h *elementHost) Send(ctx context.Context, msg msgbus.Msg) error {
	if msg.Src == "" {
		msg.Src = h.name
	}
	return h.p.SendMsg(ctx, msg)
}

func (h *elementHost) Subscribe(msgType msgbus.MsgType, subscriberID string, handler msgbus.Handler) error {
	return h.p.bus.Subscribe(msgType, subscriberID, handler)
}

func (h *elementHost) SyncManager() *syncmgr.Manager { return h.p.sync }

// Logger returns the pipeline logger; element.Base adds the element name
func (h *elementHost) Logger() *slog.Logger {
	return h.p.logger
}
