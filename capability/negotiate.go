package capability

import (
	"fmt"
	"slices"
	"strings"
)

// Negotiate selects the first capability of src, in declared expansion order, that
// every sink set contains. Source candidate order decides the winner; the order of
// sinks does not. ok is false when no candidate is accepted by all sinks or when no
// sink is given.
func Negotiate(src Set, sinks ...Set) (Capability, bool) {
	if len(sinks) == 0 {
		return Capability{}, false
	}
	for _, candidate := range ExpandPermutations(src) {
		if acceptedByAll(candidate, sinks, MatchesSet) {
			return candidate, true
		}
	}
	return Capability{}, false
}

// NegotiateCaps is the list form of Negotiate: candidates are tried in order and
// each sink is an explicit candidate list.
func NegotiateCaps(src []Capability, sinks [][]Capability) (Capability, bool) {
	if len(sinks) == 0 {
		return Capability{}, false
	}
	for _, candidate := range src {
		accepted := true
		for _, sink := range sinks {
			if !slices.Contains(sink, candidate) {
				accepted = false
				break
			}
		}
		if accepted {
			return candidate, true
		}
	}
	return Capability{}, false
}

// NegotiateWithoutCodec behaves like Negotiate but ignores the codec field, for
// elements that change encoding between their sink and source side. The returned
// capability carries the source candidate's codec.
func NegotiateWithoutCodec(src Set, sinks ...Set) (Capability, bool) {
	if len(sinks) == 0 {
		return Capability{}, false
	}
	tried := make(map[Capability]struct{})
	for _, candidate := range ExpandPermutations(src) {
		key := candidate.withoutCodec()
		if _, seen := tried[key]; seen {
			continue
		}
		tried[key] = struct{}{}
		if acceptedByAll(candidate, sinks, matchesFormat) {
			return candidate, true
		}
	}
	return Capability{}, false
}

func acceptedByAll(c Capability, sinks []Set, match func(Capability, Set) bool) bool {
	for _, sink := range sinks {
		if !match(c, sink) {
			return false
		}
	}
	return true
}

// Dump renders labelled sets for failure logs. When exactly two sets are given the
// mismatching fields are appended.
func Dump(sets ...Set) string {
	var b strings.Builder
	for i, s := range sets {
		if i > 0 {
			b.WriteString(" ")
		}
		fmt.Fprintf(&b, "[%d]%s", i, s.String())
	}
	if len(sets) == 2 {
		if fields := Mismatch(sets[0], sets[1]); len(fields) > 0 {
			fmt.Fprintf(&b, " mismatch=%s", strings.Join(fields, ","))
		}
	}
	return b.String()
}
