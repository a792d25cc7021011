// Package jukey is a media dataflow engine: elements that produce, transform and
// consume audio and video are connected through typed pins inside a pipeline,
// agree on a concrete media format before data flows, and are controlled and
// observed through a message bus.
//
// # Architecture
//
//	┌─────────────────────────────────────────────────────────┐
//	│                        Pipeline                         │
//	│   control goroutine · message bus · sync manager        │
//	│                                                         │
//	│  ┌────────┐  out   in ┌──────────┐  out   in ┌────────┐ │
//	│  │ source │──────────▶│ converter│──────────▶│  sink  │ │
//	│  └────────┘           └──────────┘           └────────┘ │
//	│       ▲ capability negotiation runs sink-to-source ▲    │
//	└───────┼──────────────────────────────────────────┼──────┘
//	        │                                          │
//	  component registry                        notifications
//	  (factories by media type and role)        (metrics, NATS, /health)
//
// # Core Packages
//
//   - capability: media formats, capability sets, intersection and matching
//   - pin: source and sink pins with two-phase negotiation and data fan-out
//   - element: the element contract, lifecycle state machine and base type
//   - component: the registry of element factories by media type and role
//   - assembler: automatic chain building between two elements
//   - pipeline: element ownership, links, control and the message bus host
//   - msgbus: typed publish/subscribe and request/reply between elements
//   - syncmgr: shared media clocks for audio/video synchronization
//
// # Components
//
//   - input/testsrc: generated audio tone and video pattern sources
//   - processor/converter: raw audio and video format conversion
//   - processor/encoder: G.711 µ-law and A-law encoding
//   - output/player: queued audio and video renderers with clock following
//   - output/rtpsender: RTP over UDP for G.711 audio
//
// # Infrastructure
//
//   - config: pipeline definitions from YAML or JSON with environment overrides
//   - metric: Prometheus registry and HTTP endpoint
//   - health: pipeline health derived from run state and negotiation
//   - natsbridge: forwarding of pipeline notifications to NATS subjects
//   - pkg/worker: bounded worker pools used by render queues
//   - pkg/retry: exponential backoff for external connections
//
// The cmd/jukey binary loads a definition, assembles the pipeline and runs it
// until interrupted.
package jukey
