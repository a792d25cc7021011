// Package pipeline hosts elements, links their pins and drives their lifecycle.
//
// # Overview
//
// A Pipeline owns a name to element map, the link table between element pins, a
// message bus and a sync manager. Elements are created through the component
// registry and initialized with a host that gives them the bus, the sync manager and
// a scoped logger.
//
//	┌──────────────────────────── Pipeline ────────────────────────────┐
//	│                                                                  │
//	│  control goroutine ── AddElement / LinkElement / AutoLink / ...  │
//	│        │                                                         │
//	│        ▼ Send START_ELEMENT (Dst = name)                         │
//	│  ┌───────────┐     ┌───────────┐     ┌───────────┐               │
//	│  │  testsrc  │ ──▶ │ converter │ ──▶ │  player   │               │
//	│  └───────────┘     └───────────┘     └───────────┘               │
//	│        │ Post ADD_ELEMENT_STREAM, PLAY_PROGRESS, ...             │
//	│        ▼                                                         │
//	│  message bus ──▶ stream registry, subscribers, NATS bridge       │
//	└──────────────────────────────────────────────────────────────────┘
//
// # State
//
// The pipeline moves INITED → RUNNING ⇄ PAUSED → STOPPED. Elements can be added,
// removed and linked only while INITED or PAUSED. Start, Pause, Resume and Stop send
// the matching control message to every element in insertion order; the first
// failing element fails the whole operation and elements already transitioned are
// not rolled back.
//
// # Control requests
//
// SendMsg waits for every handler of the message, including handlers that answer
// errors.ErrPending and resolve the message promise later. Requests without a
// context deadline are bounded by the pipeline send timeout (DefaultSendTimeout
// unless WithSendTimeout is given).
//
// # Usage
//
//	p, err := pipeline.New("camera", registry, deps)
//	if err != nil {
//		return err
//	}
//	defer p.Close()
//
//	_, _ = p.AddElement("test-source", element.Properties{"name": "src"})
//	_, _ = p.AddElement("video-player", element.Properties{"name": "render"})
//	if _, err := p.AutoLink("src", "render"); err != nil {
//		return err
//	}
//	return p.Start(ctx)
package pipeline
