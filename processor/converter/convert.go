package converter

import (
	"encoding/binary"
	"fmt"

	"github.com/ivgotcrazy/jukey-sub001/capability"
	"github.com/ivgotcrazy/jukey-sub001/errors"
)

// convertFrame maps one raw frame from in to out. Identical formats return the
// payload unchanged.
func convertFrame(payload []byte, in, out capability.Capability) ([]byte, error) {
	if in == out {
		return payload, nil
	}
	switch in.MediaType {
	case capability.MediaTypeVideo:
		return convertPixels(payload, in, out)
	case capability.MediaTypeAudio:
		return convertSamples(payload, in, out)
	default:
		return nil, fmt.Errorf("%w: media type %q", errors.ErrInvalidData, in.MediaType)
	}
}

// convertPixels repacks the chroma planes between planar I420 and semi-planar NV12.
// The luma plane is shared by both layouts.
func convertPixels(payload []byte, in, out capability.Capability) ([]byte, error) {
	if in.Resolution != out.Resolution {
		return nil, fmt.Errorf("%w: scaling %s to %s", errors.ErrInvalidData, in.Resolution, out.Resolution)
	}
	if len(payload) != in.FrameBytes() {
		return nil, fmt.Errorf("%w: %d byte frame for %s", errors.ErrInvalidData, len(payload), in.String())
	}

	w, h := in.Resolution.Width, in.Resolution.Height
	lumaSize := w * h
	chromaSize := (w / 2) * (h / 2)
	dst := make([]byte, out.FrameBytes())
	copy(dst, payload[:lumaSize])

	switch {
	case in.PixelFormat == capability.PixelFormatI420 && out.PixelFormat == capability.PixelFormatNV12:
		u := payload[lumaSize : lumaSize+chromaSize]
		v := payload[lumaSize+chromaSize : lumaSize+2*chromaSize]
		uv := dst[lumaSize:]
		for i := 0; i < chromaSize; i++ {
			uv[2*i] = u[i]
			uv[2*i+1] = v[i]
		}
	case in.PixelFormat == capability.PixelFormatNV12 && out.PixelFormat == capability.PixelFormatI420:
		uv := payload[lumaSize:]
		u := dst[lumaSize : lumaSize+chromaSize]
		v := dst[lumaSize+chromaSize : lumaSize+2*chromaSize]
		for i := 0; i < chromaSize; i++ {
			u[i] = uv[2*i]
			v[i] = uv[2*i+1]
		}
	default:
		return nil, fmt.Errorf("%w: %s to %s", errors.ErrInvalidData, in.PixelFormat, out.PixelFormat)
	}
	return dst, nil
}

// convertSamples mixes channels and resamples 16 bit little-endian PCM. Resampling
// interpolates linearly within the frame.
func convertSamples(payload []byte, in, out capability.Capability) ([]byte, error) {
	if in.SampleBits != 16 || out.SampleBits != 16 {
		return nil, fmt.Errorf("%w: %d to %d bit samples", errors.ErrInvalidData, in.SampleBits, out.SampleBits)
	}
	frameSize := 2 * in.Channels
	if len(payload)%frameSize != 0 {
		return nil, fmt.Errorf("%w: %d bytes of %d channel PCM", errors.ErrInvalidData, len(payload), in.Channels)
	}

	sample := func(frame, ch int) float64 {
		return float64(int16(binary.LittleEndian.Uint16(payload[(frame*in.Channels+ch)*2:])))
	}

	frames := len(payload) / frameSize
	mixed := make([]float64, frames*out.Channels)
	for i := 0; i < frames; i++ {
		if in.Channels == out.Channels {
			for ch := 0; ch < out.Channels; ch++ {
				mixed[i*out.Channels+ch] = sample(i, ch)
			}
			continue
		}
		var sum float64
		for ch := 0; ch < in.Channels; ch++ {
			sum += sample(i, ch)
		}
		for ch := 0; ch < out.Channels; ch++ {
			mixed[i*out.Channels+ch] = sum / float64(in.Channels)
		}
	}

	outFrames := frames * out.SampleRate / in.SampleRate
	dst := make([]byte, outFrames*out.Channels*2)
	for j := 0; j < outFrames; j++ {
		pos := float64(j) * float64(in.SampleRate) / float64(out.SampleRate)
		i0 := int(pos)
		i1 := min(i0+1, frames-1)
		frac := pos - float64(i0)
		for ch := 0; ch < out.Channels; ch++ {
			a := mixed[i0*out.Channels+ch]
			b := mixed[i1*out.Channels+ch]
			binary.LittleEndian.PutUint16(dst[(j*out.Channels+ch)*2:], uint16(int16(a+(b-a)*frac)))
		}
	}
	return dst, nil
}
