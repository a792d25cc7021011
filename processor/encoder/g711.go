package encoder

import (
	"encoding/binary"
	"fmt"

	"github.com/ivgotcrazy/jukey-sub001/capability"
	"github.com/ivgotcrazy/jukey-sub001/errors"
)

const (
	ulawBias = 0x84
	ulawClip = 32635
)

// linearToULaw compands one 16 bit sample with the G.711 mu-law curve
func linearToULaw(sample int16) byte {
	s := int(sample)
	sign := 0
	if s < 0 {
		s = -s
		sign = 0x80
	}
	if s > ulawClip {
		s = ulawClip
	}
	s += ulawBias

	exponent := 7
	for mask := 0x4000; s&mask == 0 && exponent > 0; mask >>= 1 {
		exponent--
	}
	mantissa := (s >> (exponent + 3)) & 0x0F
	return ^byte(sign | exponent<<4 | mantissa)
}

// segment upper bounds of the 13 bit A-law input
var alawSegmentEnd = [8]int{0x1F, 0x3F, 0x7F, 0xFF, 0x1FF, 0x3FF, 0x7FF, 0xFFF}

// linearToALaw compands one 16 bit sample with the G.711 A-law curve
func linearToALaw(sample int16) byte {
	pcm := int(sample) >> 3
	mask := 0xD5
	if pcm < 0 {
		mask = 0x55
		pcm = -pcm - 1
	}

	seg := 0
	for seg < len(alawSegmentEnd) && pcm > alawSegmentEnd[seg] {
		seg++
	}
	if seg == len(alawSegmentEnd) {
		return byte(0x7F ^ mask)
	}

	aval := seg << 4
	if seg < 2 {
		aval |= (pcm >> 1) & 0x0F
	} else {
		aval |= (pcm >> seg) & 0x0F
	}
	return byte(aval ^ mask)
}

// encodeG711 compands 16 bit little-endian PCM into one byte per sample
func encodeG711(payload []byte, codec capability.Codec) ([]byte, error) {
	if len(payload)%2 != 0 {
		return nil, fmt.Errorf("%w: odd PCM length %d", errors.ErrInvalidData, len(payload))
	}
	var compand func(int16) byte
	switch codec {
	case capability.CodecPCMU:
		compand = linearToULaw
	case capability.CodecPCMA:
		compand = linearToALaw
	default:
		return nil, fmt.Errorf("%w: codec %q", errors.ErrInvalidData, codec)
	}

	out := make([]byte, len(payload)/2)
	for i := range out {
		out[i] = compand(int16(binary.LittleEndian.Uint16(payload[2*i:])))
	}
	return out, nil
}
