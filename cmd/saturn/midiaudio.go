package main

import (
	"bytes"
	"encoding/binary"
	"math"
	"sync"

	"github.com/ebitengine/oto/v3"
	"github.com/saturn-mips/saturn/internal/syscallx"
)

const sampleRate = 48000

// otoMIDI synthesizes each midi_out/midi_out_sync note as a short
// additive-sine tone and plays it through a fresh oto.Player, grounded
// on audio_backend_oto.go's NewContext/NewPlayer usage. The original
// engine drives real General MIDI patches; reproducing all 128 timbres
// is out of scope, so instrument id only selects how many harmonics
// the tone carries (a crude brightness knob), not a distinct waveform
// per patch.
type otoMIDI struct {
	mu  sync.Mutex
	ctx *oto.Context
}

func newOtoMIDI() (*otoMIDI, error) {
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 1,
		Format:       oto.FormatFloat32LE,
		BufferSize:   0,
	})
	if err != nil {
		return nil, err
	}
	<-ready
	return &otoMIDI{ctx: ctx}, nil
}

// Play renders req and starts it playing; it returns immediately,
// matching the MIDI interface's contract that Play never blocks.
func (m *otoMIDI) Play(req syscallx.MIDIRequest) {
	samples := synthesize(req)

	m.mu.Lock()
	player := m.ctx.NewPlayer(bytes.NewReader(samples))
	m.mu.Unlock()

	player.Play()
}

// synthesize renders req into little-endian float32 PCM. Pitch is
// interpreted as a MIDI note number (A440 = note 69); duration is
// milliseconds; volume 0-127 scales amplitude linearly.
func synthesize(req syscallx.MIDIRequest) []byte {
	freq := 440.0 * math.Pow(2, (float64(req.Pitch)-69)/12)
	durationSeconds := float64(req.Duration) / 1000
	if durationSeconds <= 0 {
		durationSeconds = 0.1
	}
	numSamples := int(durationSeconds * sampleRate)
	amplitude := float32(req.Volume) / 127
	if amplitude > 1 {
		amplitude = 1
	}
	harmonics := 1 + int(req.Instrument%4)

	buf := make([]byte, numSamples*4)
	for i := 0; i < numSamples; i++ {
		t := float64(i) / sampleRate
		// Linear decay envelope so a note doesn't end on a click.
		envelope := float32(1 - float64(i)/float64(numSamples))

		var v float32
		for h := 1; h <= harmonics; h++ {
			v += float32(math.Sin(2*math.Pi*freq*float64(h)*t)) / float32(h)
		}
		v *= amplitude * envelope / float32(harmonics)

		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}
