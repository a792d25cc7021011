// Package componentregistry registers the built-in media components.
package componentregistry

import (
	"errors"

	"github.com/ivgotcrazy/jukey-sub001/component"
	pkgerrors "github.com/ivgotcrazy/jukey-sub001/errors"
	"github.com/ivgotcrazy/jukey-sub001/input/testsrc"
	"github.com/ivgotcrazy/jukey-sub001/output/player"
	"github.com/ivgotcrazy/jukey-sub001/output/rtpsender"
	"github.com/ivgotcrazy/jukey-sub001/processor/converter"
	"github.com/ivgotcrazy/jukey-sub001/processor/encoder"
)

// Register registers every built-in component with the provided registry:
//
// Sources:
//   - video-test-source, audio-test-source (synthetic raw frames)
//
// Filters:
//   - video-converter (I420/NV12 repacking)
//   - audio-converter (PCM channel mixing and resampling)
//   - g711-encoder (PCMU/PCMA)
//
// Sinks:
//   - video-player, audio-player (render queue with A/V sync)
//   - rtp-sender (G.711 over RTP/UDP)
func Register(registry *component.Registry) error {
	// Nil registry is a programming error (fatal), not invalid input
	if registry == nil {
		return pkgerrors.WrapFatal(
			errors.New("registry cannot be nil"),
			"ComponentRegistry", "Register", "registry validation")
	}

	for _, r := range []struct {
		what     string
		register func(*component.Registry) error
	}{
		{"test source", testsrc.Register},
		{"converter", converter.Register},
		{"G.711 encoder", encoder.Register},
		{"player", player.Register},
		{"RTP sender", rtpsender.Register},
	} {
		if err := r.register(registry); err != nil {
			return pkgerrors.WrapInvalid(err, "ComponentRegistry", "Register", r.what+" component registration")
		}
	}
	return nil
}
