package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/dgnsrekt/narrate/internal/ttypes"
	"github.com/go-audio/wav"
)

// Silence returns d worth of zero samples, frame-aligned.
func Silence(format ttypes.AudioFormat, d time.Duration) []byte {
	return make([]byte, format.BytesForDuration(d))
}

// ValidatePCM checks that data is made of whole frames.
func ValidatePCM(data []byte, format ttypes.AudioFormat) error {
	frame := format.FrameSize()
	if frame == 0 {
		return fmt.Errorf("invalid audio format %+v", format)
	}
	if len(data)%frame != 0 {
		return fmt.Errorf("PCM data length %d is not aligned to %d-byte frames", len(data), frame)
	}
	return nil
}

func sampleAt(pcm []byte, i int) int16 {
	return int16(binary.LittleEndian.Uint16(pcm[i*ttypes.SampleWidth:]))
}

func putSample(pcm []byte, i int, v int16) {
	binary.LittleEndian.PutUint16(pcm[i*ttypes.SampleWidth:], uint16(v))
}

// isWAV reports whether payload starts with a RIFF/WAVE header.
func isWAV(payload []byte) bool {
	return len(payload) >= 12 &&
		bytes.Equal(payload[0:4], []byte("RIFF")) &&
		bytes.Equal(payload[8:12], []byte("WAVE"))
}

// DecodePayload returns the raw PCM of a synthesis payload. The service may
// wrap LINEAR16 audio in a WAV container; the header is stripped and its
// format checked against the expected one. A format mismatch is reported
// as an assembly error.
func DecodePayload(payload []byte, format ttypes.AudioFormat) ([]byte, error) {
	if !isWAV(payload) {
		if err := ValidatePCM(payload, format); err != nil {
			return nil, err
		}
		return payload, nil
	}

	dec := wav.NewDecoder(bytes.NewReader(payload))
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("invalid WAV payload of %d bytes", len(payload))
	}
	if int(dec.SampleRate) != format.SampleRate ||
		int(dec.NumChans) != format.Channels ||
		int(dec.BitDepth) != format.SampleWidth*8 {
		return nil, ttypes.NewError(ttypes.ErrorCodeAssembly,
			fmt.Sprintf("payload is %d Hz, %d channel(s), %d-bit; want %d Hz, %d channel(s), %d-bit",
				dec.SampleRate, dec.NumChans, dec.BitDepth,
				format.SampleRate, format.Channels, format.SampleWidth*8),
			nil)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode WAV payload: %w", err)
	}
	pcm := make([]byte, len(buf.Data)*ttypes.SampleWidth)
	for i, s := range buf.Data {
		putSample(pcm, i, int16(s))
	}
	return pcm, nil
}
