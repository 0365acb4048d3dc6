package audio

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/dgnsrekt/narrate/internal/ttypes"
)

func TestWriteWAV_SizeLaw(t *testing.T) {
	format := ttypes.NewAudioFormat(24000)
	for _, frames := range []int{0, 1, 777, 24000} {
		path := filepath.Join(t.TempDir(), "out", "narration.wav")
		a := ttypes.AssembledAudio{PCM: constantPCM(frames, 42), Format: format}
		if err := WriteWAV(path, a); err != nil {
			t.Fatalf("WriteWAV: %v", err)
		}
		info, err := os.Stat(path)
		if err != nil {
			t.Fatal(err)
		}
		if want := int64(44 + 2*frames); info.Size() != want {
			t.Errorf("%d frames: file is %d bytes, want %d", frames, info.Size(), want)
		}
	}
}

func TestWriteWAV_Header(t *testing.T) {
	path := filepath.Join(t.TempDir(), "narration.wav")
	pcm := constantPCM(100, -7)
	if err := WriteWAV(path, ttypes.AssembledAudio{PCM: pcm, Format: ttypes.NewAudioFormat(16000)}); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" || string(data[36:40]) != "data" {
		t.Fatalf("unexpected header % x", data[:44])
	}
	le := func(b []byte) int { return int(b[0]) | int(b[1])<<8 | int(b[2])<<16 | int(b[3])<<24 }
	if got := int(data[22]) | int(data[23])<<8; got != 1 {
		t.Errorf("channels = %d", got)
	}
	if got := le(data[24:28]); got != 16000 {
		t.Errorf("sample rate = %d", got)
	}
	if got := int(data[34]) | int(data[35])<<8; got != 16 {
		t.Errorf("bits per sample = %d", got)
	}
	if got := le(data[40:44]); got != len(pcm) {
		t.Errorf("data size = %d, want %d", got, len(pcm))
	}
	if !bytes.Equal(data[44:], pcm) {
		t.Error("PCM payload differs")
	}
}

func TestDecodePayload(t *testing.T) {
	format := ttypes.NewAudioFormat(24000)
	pcm := constantPCM(50, 300)

	t.Run("raw", func(t *testing.T) {
		got, err := DecodePayload(pcm, format)
		if err != nil || !bytes.Equal(got, pcm) {
			t.Errorf("DecodePayload(raw) = %d bytes, %v", len(got), err)
		}
	})

	t.Run("odd length", func(t *testing.T) {
		if _, err := DecodePayload(pcm[:3], format); err == nil {
			t.Error("expected alignment error")
		}
	})

	t.Run("wav container", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "payload.wav")
		if err := WriteWAV(path, ttypes.AssembledAudio{PCM: pcm, Format: format}); err != nil {
			t.Fatal(err)
		}
		payload, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		got, err := DecodePayload(payload, format)
		if err != nil {
			t.Fatalf("DecodePayload: %v", err)
		}
		if !bytes.Equal(got, pcm) {
			t.Errorf("header not stripped: got %d bytes, want %d", len(got), len(pcm))
		}
	})

	t.Run("wrong sample rate", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "payload.wav")
		if err := WriteWAV(path, ttypes.AssembledAudio{PCM: pcm, Format: ttypes.NewAudioFormat(8000)}); err != nil {
			t.Fatal(err)
		}
		payload, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := DecodePayload(payload, format); !errors.Is(err, ttypes.ErrAssembly) {
			t.Errorf("err = %v, want assembly error", err)
		}
	})
}
