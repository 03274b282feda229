//go:build portaudio

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/AI-Engineer-Skool/ai-voice-agent-bootstrap/audio"
	"github.com/AI-Engineer-Skool/ai-voice-agent-bootstrap/providers/openai"
)

// micFramesPerBuffer is 20ms at the realtime sample rate.
const micFramesPerBuffer = openai.DefaultRealtimeSampleRate / 50

// microphone reads the default input device as mono PCM16 at the realtime
// sample rate.
type microphone struct {
	stream  *portaudio.Stream
	frame   []int16
	pcm     []byte
	pending []byte

	closeOnce sync.Once
	closeErr  error
}

func openMicrophone(context.Context) (io.ReadCloser, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	m := &microphone{
		frame: make([]int16, micFramesPerBuffer),
		pcm:   make([]byte, 0, micFramesPerBuffer*pcmBytesPerSample),
	}
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(openai.DefaultRealtimeSampleRate), len(m.frame), m.frame)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("failed to open input stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("failed to start input stream: %w", err)
	}
	m.stream = stream
	return m, nil
}

func (m *microphone) Read(p []byte) (int, error) {
	if len(m.pending) == 0 {
		// Overflow means frames were dropped; the buffer still holds audio.
		if err := m.stream.Read(); err != nil && !errors.Is(err, portaudio.InputOverflowed) {
			return 0, fmt.Errorf("microphone read: %w", err)
		}
		m.pending = audio.EncodePCM16(m.pcm[:0], m.frame)
	}
	n := copy(p, m.pending)
	m.pending = m.pending[n:]
	return n, nil
}

func (m *microphone) Close() error {
	m.closeOnce.Do(func() {
		m.closeErr = errors.Join(m.stream.Stop(), m.stream.Close(), portaudio.Terminate())
	})
	return m.closeErr
}
