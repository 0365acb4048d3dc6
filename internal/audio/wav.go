package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/narrate/internal/ttypes"
	"github.com/dustin/go-humanize"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// EncodeWAV writes pcm as a canonical WAV stream: a 44-byte header followed
// by the samples.
func EncodeWAV(w io.WriteSeeker, pcm []byte, format ttypes.AudioFormat) error {
	if err := ValidatePCM(pcm, format); err != nil {
		return err
	}

	samples := make([]int, len(pcm)/ttypes.SampleWidth)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*ttypes.SampleWidth:])))
	}
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: format.Channels, SampleRate: format.SampleRate},
		Data:           samples,
		SourceBitDepth: format.SampleWidth * 8,
	}

	// audio format 1 is integer PCM
	enc := wav.NewEncoder(w, format.SampleRate, format.SampleWidth*8, format.Channels, 1)
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return nil
}

// WriteWAV writes the assembled audio to path. The file is written to a
// temporary name in the same directory and renamed into place.
func WriteWAV(path string, a ttypes.AssembledAudio) error {
	format := a.Format
	if format.FrameSize() == 0 {
		format = ttypes.NewAudioFormat(format.SampleRate)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".narrate-*.wav")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if err := EncodeWAV(tmp, a.PCM, format); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename output file: %w", err)
	}

	log.Info("Wrote narration",
		"path", path,
		"size", humanize.Bytes(uint64(len(a.PCM)+44)),
		"duration", format.Duration(len(a.PCM)))
	return nil
}
