// Package audio turns synthesized PCM segments into the final narration:
// payload decoding, assembly with silence and fade-out, and WAV output.
package audio
