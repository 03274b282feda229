package audio

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"
	"time"
)

// generatePCMAudio creates 16-bit PCM audio data with the given amplitude.
// amplitude should be 0.0 to 1.0
func generatePCMAudio(samples int, amplitude float64) []byte {
	data := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		sample := int16(amplitude * 32767 * math.Sin(float64(i)*0.1))
		binary.LittleEndian.PutUint16(data[i*2:], uint16(sample))
	}
	return data
}

// generateSilence creates silent 16-bit PCM audio data.
func generateSilence(samples int) []byte {
	return make([]byte, samples*2)
}

func newTestGate(t *testing.T) (*SpeechGate, *manualClock) {
	t.Helper()
	clk := newManualClock()
	g, err := NewSpeechGate(DefaultGateParams(), WithGateClock(clk.Now))
	if err != nil {
		t.Fatalf("NewSpeechGate() error = %v", err)
	}
	return g, clk
}

func TestGateParams_Validate(t *testing.T) {
	if err := DefaultGateParams().Validate(); err != nil {
		t.Errorf("DefaultGateParams().Validate() error = %v", err)
	}
	bad := []GateParams{
		{Threshold: 0, StartFrames: 1},
		{Threshold: 0.1, StartFrames: 0},
		{Threshold: 0.1, StartFrames: 1, Debounce: -time.Millisecond},
	}
	for i, p := range bad {
		if err := p.Validate(); err == nil {
			t.Errorf("case %d: Validate() should error", i)
		}
	}
}

func TestSpeechGate_StartRequiresConsecutiveFrames(t *testing.T) {
	g, clk := newTestGate(t)

	g.Update(0.5)
	g.Update(0.5)
	g.Update(0.0) // resets the run
	if g.Speaking() {
		t.Fatal("gate started before enough consecutive frames")
	}

	for i := 0; i < DefaultGateStartFrames; i++ {
		clk.Advance(20 * time.Millisecond)
		g.Update(0.5)
	}
	if !g.Speaking() {
		t.Fatal("gate did not start after consecutive frames")
	}

	select {
	case ev := <-g.Events():
		if !ev.Speaking {
			t.Errorf("first event Speaking = false, want true")
		}
	default:
		t.Fatal("expected a start event")
	}
}

func TestSpeechGate_StopAfterDebounce(t *testing.T) {
	g, clk := newTestGate(t)
	for i := 0; i < DefaultGateStartFrames; i++ {
		g.Update(0.5)
	}
	<-g.Events()

	g.Update(0.0)
	clk.Advance(DefaultGateDebounce / 2)
	if !g.Update(0.0) {
		t.Fatal("gate stopped before debounce elapsed")
	}

	// A loud sample restarts the quiet period.
	g.Update(0.5)
	clk.Advance(DefaultGateDebounce / 2)
	g.Update(0.0)
	clk.Advance(DefaultGateDebounce)
	if g.Update(0.0) {
		t.Fatal("gate still speaking after debounce")
	}

	select {
	case ev := <-g.Events():
		if ev.Speaking {
			t.Errorf("stop event Speaking = true")
		}
	default:
		t.Fatal("expected a stop event")
	}
}

func TestSpeechGate_Reset(t *testing.T) {
	g, _ := newTestGate(t)
	for i := 0; i < DefaultGateStartFrames; i++ {
		g.Update(0.5)
	}
	g.Reset()
	if g.Speaking() {
		t.Error("Speaking() = true after Reset")
	}
}

func TestSpeechGate_EventsDoNotBlock(t *testing.T) {
	g, clk := newTestGate(t)

	for i := 0; i < gateEventBufferSize*3; i++ {
		for j := 0; j < DefaultGateStartFrames; j++ {
			g.Update(0.5)
		}
		g.Update(0.0)
		clk.Advance(DefaultGateDebounce)
		g.Update(0.0)
	}
	if got := len(g.Events()); got != gateEventBufferSize {
		t.Errorf("buffered events = %d, want %d", got, gateEventBufferSize)
	}
}

func TestPCM16RMS(t *testing.T) {
	if got := PCM16RMS(generateSilence(1600)); got != 0 {
		t.Errorf("PCM16RMS(silence) = %v, want 0", got)
	}
	if got := PCM16RMS(nil); got != 0 {
		t.Errorf("PCM16RMS(nil) = %v, want 0", got)
	}

	loud := PCM16RMS(generatePCMAudio(1600, 0.8))
	quiet := PCM16RMS(generatePCMAudio(1600, 0.1))
	if loud <= quiet {
		t.Errorf("loud %v should exceed quiet %v", loud, quiet)
	}
	// RMS of a sine is amplitude/sqrt(2).
	if math.Abs(loud-0.8/math.Sqrt2) > 0.02 {
		t.Errorf("PCM16RMS(sine 0.8) = %v, want ~%v", loud, 0.8/math.Sqrt2)
	}
}

func TestEncodePCM16(t *testing.T) {
	got := EncodePCM16([]byte{0xff}, []int16{1, -1, 32767, -32768})
	want := []byte{0xff, 0x01, 0x00, 0xff, 0xff, 0xff, 0x7f, 0x00, 0x80}
	if !bytes.Equal(got, want) {
		t.Errorf("EncodePCM16 = %x, want %x", got, want)
	}
	if got := PCM16RMS(EncodePCM16(nil, []int16{-32768, -32768})); got != 1 {
		t.Errorf("PCM16RMS(full scale) = %v, want 1", got)
	}
}

func TestByteTimeDomainRMS(t *testing.T) {
	flat := make([]byte, 256)
	for i := range flat {
		flat[i] = 128
	}
	if got := ByteTimeDomainRMS(flat); got != 0 {
		t.Errorf("ByteTimeDomainRMS(flat) = %v, want 0", got)
	}
	if got := ByteTimeDomainRMS(nil); got != 0 {
		t.Errorf("ByteTimeDomainRMS(nil) = %v, want 0", got)
	}

	square := make([]byte, 256)
	for i := range square {
		if i%2 == 0 {
			square[i] = 0
		} else {
			square[i] = 255
		}
	}
	if got := ByteTimeDomainRMS(square); got < 0.99 || got > 1 {
		t.Errorf("ByteTimeDomainRMS(full square) = %v, want ~1", got)
	}
}
