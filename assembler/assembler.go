// Package assembler finds and links the intermediate elements needed to connect two
// otherwise incompatible pins. Intermediate roles come from a fixed role graph;
// candidates for each role come from an ElementProvider, and every edge of a
// candidate chain is tested with a dry-run negotiation before anything is linked.
//
// The search is a depth-first walk over one row of candidates per role, so its cost
// is the product of the per-role candidate counts.
package assembler

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/ivgotcrazy/jukey-sub001/capability"
	"github.com/ivgotcrazy/jukey-sub001/element"
	"github.com/ivgotcrazy/jukey-sub001/errors"
	"github.com/ivgotcrazy/jukey-sub001/pin"
)

// ElementProvider supplies candidate elements for a role
type ElementProvider interface {
	GetElements(mediaType capability.MediaType, role element.Role) []element.Element
}

// LinkNode is a candidate element with the pins used to chain it
type LinkNode struct {
	Element element.Element
	Sink    *pin.SinkPin
	Source  *pin.SourcePin
}

// Chain is a viable path from Source to Sink through Nodes, in data flow order
type Chain struct {
	Source *pin.SourcePin
	Nodes  []LinkNode
	Sink   *pin.SinkPin
}

// Elements returns the intermediate elements of the chain
func (c Chain) Elements() []element.Element {
	out := make([]element.Element, len(c.Nodes))
	for i, n := range c.Nodes {
		out[i] = n.Element
	}
	return out
}

// Link is one source-to-sink edge, by pin ID
type Link struct {
	Source string
	Sink   string
}

// Endpoint is a fixed element at either end of an auto link. A nil pin selects the
// element's first pin of the needed direction.
type Endpoint struct {
	Element   element.Element
	SourcePin *pin.SourcePin
	SinkPin   *pin.SinkPin
}

// Assembler searches the role graph for intermediate elements
type Assembler struct {
	graph    *roleGraph
	provider ElementProvider
	logger   *slog.Logger
}

// New creates an assembler drawing candidates from provider
func New(provider ElementProvider, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{
		graph:    newRoleGraph(),
		provider: provider,
		logger:   logger.With("component", "assembler"),
	}
}

// Paths returns every root-to-leaf role path
func (a *Assembler) Paths() [][]element.Role {
	out := make([][]element.Role, len(a.graph.paths))
	for i, p := range a.graph.paths {
		out[i] = slices.Clone(p)
	}
	return out
}

// AssembleElements returns the roles strictly between begin and end on the first
// path holding both in order. An empty result with true means the roles are
// adjacent; false means they are unrelated.
func (a *Assembler) AssembleElements(begin, end element.Role) ([]element.Role, bool) {
	return a.graph.between(begin, end)
}

// GetElementNodes builds one row of candidates per role. Candidates lacking a sink
// or source pin are skipped. It reports false when a role has no candidate.
func (a *Assembler) GetElementNodes(mediaType capability.MediaType, roles []element.Role) ([][]LinkNode, bool) {
	rows := make([][]LinkNode, 0, len(roles))
	for _, role := range roles {
		var row []LinkNode
		if a.provider != nil {
			for _, e := range a.provider.GetElements(mediaType, role) {
				sinks, srcs := e.SinkPins(), e.SourcePins()
				if len(sinks) == 0 || len(srcs) == 0 {
					continue
				}
				row = append(row, LinkNode{Element: e, Sink: sinks[0], Source: srcs[0]})
			}
		}
		if len(row) == 0 {
			a.logger.Debug("No candidate element", "role", role, "media_type", mediaType)
			return nil, false
		}
		rows = append(rows, row)
	}
	return rows, true
}

// TryLinkNodes walks rows depth first from src. An edge is taken when a dry-run
// negotiation between the previous source pin and the candidate's sink pin succeeds.
// Every complete chain is returned; when sink is not nil the last source pin must
// also reach it. Nothing is mutated.
func TryLinkNodes(src *pin.SourcePin, rows [][]LinkNode, sink *pin.SinkPin) [][]LinkNode {
	var chains [][]LinkNode
	var walk func(prev *pin.SourcePin, depth int, chain []LinkNode)
	walk = func(prev *pin.SourcePin, depth int, chain []LinkNode) {
		if depth == len(rows) {
			if sink != nil {
				if _, ok := prev.TryNegotiate(sink); !ok {
					return
				}
			}
			chains = append(chains, slices.Clone(chain))
			return
		}
		for _, node := range rows[depth] {
			if slices.ContainsFunc(chain, func(n LinkNode) bool { return n.Element == node.Element }) {
				continue
			}
			if _, ok := prev.TryNegotiate(node.Sink); !ok {
				continue
			}
			walk(node.Source, depth+1, append(chain, node))
		}
	}
	walk(src, 0, nil)
	return chains
}

// FindAvailableLinks returns every viable chain between the two endpoints
func (a *Assembler) FindAvailableLinks(src, sink Endpoint) ([]Chain, bool) {
	srcPin, sinkPin, err := resolve(src, sink)
	if err != nil {
		a.logger.Debug("Endpoint resolution failed", "error", err)
		return nil, false
	}

	roles, ok := a.AssembleElements(src.Element.SubType(), sink.Element.SubType())
	if !ok {
		a.logger.Debug("Roles are not related",
			"source_role", src.Element.SubType(), "sink_role", sink.Element.SubType())
		return nil, false
	}

	if len(roles) == 0 {
		if _, ok := srcPin.TryNegotiate(sinkPin); !ok {
			return nil, false
		}
		return []Chain{{Source: srcPin, Sink: sinkPin}}, true
	}

	rows, ok := a.GetElementNodes(srcPin.MediaType(), roles)
	if !ok {
		return nil, false
	}

	found := TryLinkNodes(srcPin, rows, sinkPin)
	if len(found) == 0 {
		a.logger.Debug("No viable chain",
			"roles", roles,
			"dump", capability.Dump(srcPin.Available(), sinkPin.Available()))
		return nil, false
	}

	chains := make([]Chain, len(found))
	for i, nodes := range found {
		chains[i] = Chain{Source: srcPin, Nodes: nodes, Sink: sinkPin}
	}
	return chains, true
}

// TryAutoLink links the first chain that negotiates end to end. Links are made
// sink to source so downstream pins exist before upstream negotiation fires. Each
// attempt is atomic: when a link fails, or the chain is linked but its sink pin
// ends up without a capability although upstream negotiated, the links made by the
// attempt are removed and the next chain is tried.
func (a *Assembler) TryAutoLink(src, sink Endpoint) (Chain, []Link, error) {
	if src.Element == nil || sink.Element == nil {
		return Chain{}, nil, errors.WrapInvalid(errors.ErrInvalidParam, "Assembler", "TryAutoLink", "endpoint check")
	}

	chains, ok := a.FindAvailableLinks(src, sink)
	if !ok {
		return Chain{}, nil, errors.Wrap(
			fmt.Errorf("%w: %s to %s", errors.ErrNoAvailableLink, src.Element.Name(), sink.Element.Name()),
			"Assembler", "TryAutoLink", "chain search")
	}

	var lastErr error
	for _, chain := range chains {
		links, err := a.linkChain(chain, src.Element.MainType() == element.MainTypeSrc)
		if err != nil {
			lastErr = err
			continue
		}
		a.logger.Info("Auto link established",
			"source", chain.Source.ID(), "sink", chain.Sink.ID(), "hops", len(chain.Nodes))
		return chain, links, nil
	}
	return Chain{}, nil, lastErr
}

// linkChain links one chain. srcDrives tells whether linking the source pin
// triggers negotiation on its own.
func (a *Assembler) linkChain(chain Chain, srcDrives bool) ([]Link, error) {
	upstreamNegotiated := chain.Source.Negotiated()

	edges := chain.edges()
	var made []edge
	for i := len(edges) - 1; i >= 0; i-- {
		e := edges[i]
		if err := e.source.AddSinkPin(e.sink); err != nil {
			a.rollback(made)
			a.logger.Warn("Auto link failed",
				"source", e.source.ID(), "sink", e.sink.ID(), "error", err)
			return nil, errors.Wrap(err, "Assembler", "TryAutoLink", "link "+e.source.ID()+" to "+e.sink.ID())
		}
		made = append(made, e)
	}

	if (upstreamNegotiated || srcDrives) && !chain.Sink.Negotiated() {
		a.rollback(made)
		a.logger.Warn("Auto link does not negotiate end to end",
			"source", chain.Source.ID(), "sink", chain.Sink.ID(), "hops", len(chain.Nodes))
		return nil, errors.Wrap(
			fmt.Errorf("%w: %s to %s", errors.ErrNoCommonCap, chain.Source.ID(), chain.Sink.ID()),
			"Assembler", "TryAutoLink", "end-to-end negotiation check")
	}

	links := make([]Link, len(edges))
	for i, e := range edges {
		links[i] = Link{Source: e.source.ID(), Sink: e.sink.ID()}
	}
	return links, nil
}

func (a *Assembler) rollback(made []edge) {
	for i := len(made) - 1; i >= 0; i-- {
		e := made[i]
		if err := e.source.RemoveSinkPin(e.sink.ID()); err != nil {
			a.logger.Warn("Auto link rollback failed",
				"source", e.source.ID(), "sink", e.sink.ID(), "error", err)
		}
	}
}

type edge struct {
	source *pin.SourcePin
	sink   *pin.SinkPin
}

// edges returns the chain's edges in data flow order
func (c Chain) edges() []edge {
	out := make([]edge, 0, len(c.Nodes)+1)
	prev := c.Source
	for _, n := range c.Nodes {
		out = append(out, edge{source: prev, sink: n.Sink})
		prev = n.Source
	}
	return append(out, edge{source: prev, sink: c.Sink})
}

func resolve(src, sink Endpoint) (*pin.SourcePin, *pin.SinkPin, error) {
	if src.Element == nil || sink.Element == nil {
		return nil, nil, errors.ErrInvalidParam
	}
	srcPin := src.SourcePin
	if srcPin == nil {
		pins := src.Element.SourcePins()
		if len(pins) == 0 {
			return nil, nil, fmt.Errorf("%w: %s has no source pin", errors.ErrPinNotFound, src.Element.Name())
		}
		srcPin = pins[0]
	}
	sinkPin := sink.SinkPin
	if sinkPin == nil {
		pins := sink.Element.SinkPins()
		if len(pins) == 0 {
			return nil, nil, fmt.Errorf("%w: %s has no sink pin", errors.ErrPinNotFound, sink.Element.Name())
		}
		sinkPin = pins[0]
	}
	return srcPin, sinkPin, nil
}
