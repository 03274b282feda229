package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/AI-Engineer-Skool/ai-voice-agent-bootstrap/config"
	"github.com/AI-Engineer-Skool/ai-voice-agent-bootstrap/engine"
	"github.com/AI-Engineer-Skool/ai-voice-agent-bootstrap/logger"
	"github.com/AI-Engineer-Skool/ai-voice-agent-bootstrap/providers/openai"
	"github.com/AI-Engineer-Skool/ai-voice-agent-bootstrap/server"
	"github.com/AI-Engineer-Skool/ai-voice-agent-bootstrap/session"
)

const (
	pcmBytesPerSample = 2
	defaultChunk      = 20 * time.Millisecond
	mintTimeout       = 15 * time.Second
)

var callFlags struct {
	api          string
	participant  string
	ephemeralKey string
	sessionID    string
	realtimeURL  string
	input        string
	mic          bool
	chunk        time.Duration
}

var callCmd = &cobra.Command{
	Use:   "call",
	Short: "Run a moderated call from the terminal",
	Long: `Mints a realtime session from the API (or uses --ephemeral-key), connects
to the realtime provider and runs the moderator against the live transcript.

Microphone audio is read as raw 24kHz mono PCM16 from --input ("-" for stdin),
or captured from the default input device with --mic in builds tagged
portaudio.
Transcript lines and moderator guidance are printed to stdout.`,
	Example: `  # Stream a recording through a local API
  voicemod call --input call.pcm

  # Pipe a microphone capture
  arecord -f S16_LE -r 24000 -c 1 -t raw | voicemod call --input -

  # Capture the default microphone (go build -tags portaudio)
  voicemod call --mic`,
	RunE: runCall,
}

func init() {
	rootCmd.AddCommand(callCmd)

	f := callCmd.Flags()
	f.StringVar(&callFlags.api, "api", "", "Session API base URL (default: moderator.guidance_url)")
	f.StringVar(&callFlags.participant, "participant", "", "Customer name used in the agent persona")
	f.StringVar(&callFlags.ephemeralKey, "ephemeral-key", "", "Use this realtime key instead of minting a session")
	f.StringVar(&callFlags.sessionID, "session-id", "", "Session id for guidance polls (with --ephemeral-key)")
	f.StringVar(&callFlags.realtimeURL, "realtime-url", "", "Override the realtime websocket URL")
	f.StringVarP(&callFlags.input, "input", "i", "", "Raw PCM16 input file, or - for stdin")
	f.BoolVar(&callFlags.mic, "mic", false, "Capture the default microphone (portaudio builds)")
	f.DurationVar(&callFlags.chunk, "chunk", defaultChunk, "Duration of each audio chunk sent upstream")
	callCmd.MarkFlagsMutuallyExclusive("input", "mic")
}

func runCall(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	api := callFlags.api
	if api == "" {
		api = cfg.Moderator.GuidanceURL
	}

	id, params, err := connectParams(ctx, cfg, api)
	if err != nil {
		return err
	}

	input, err := callInput(ctx, cmd.InOrStdin())
	if err != nil {
		return err
	}
	if input != nil {
		defer input.Close()
	}

	scfg := session.FromConfig(cfg, id, params)
	scfg.GuidanceURL = api
	sess, err := session.New(scfg, session.WithSink(session.NewTextSink(cmd.OutOrStdout())))
	if err != nil {
		return err
	}
	defer func() {
		if err := sess.Close(); err != nil {
			logger.Warn("Session close failed", "error", err)
		}
	}()

	if err := sess.Start(ctx); err != nil {
		return fmt.Errorf("failed to start call: %w", err)
	}
	logger.Info("Call started", "session", sess.ID())

	if input != nil {
		go func() {
			if err := streamAudio(ctx, input, callFlags.chunk, sess.PushAudio); err != nil {
				logger.Warn("Audio input stopped", "error", err)
			}
		}()
	}

	<-ctx.Done()
	logger.Info("Call ended", "session", sess.ID())
	return nil
}

// connectParams resolves the realtime connection for a call, minting a
// session from the API unless an ephemeral key was given.
func connectParams(ctx context.Context, cfg *config.Config, api string) (string, openai.ConnectParams, error) {
	params := openai.ConnectParams{
		Provider:   openai.Provider(cfg.Realtime.Provider),
		Endpoint:   cfg.Realtime.Endpoint,
		Model:      cfg.Realtime.Model,
		APIVersion: cfg.Realtime.APIVersion,
		URL:        callFlags.realtimeURL,
		Greet:      cfg.Realtime.Greet,
	}

	if callFlags.ephemeralKey != "" {
		params.Token = callFlags.ephemeralKey
		sc := openai.DefaultSessionConfig(personaInstructions(cfg, callFlags.participant))
		sc.Voice = cfg.Realtime.Voice
		sc.InputAudioTranscription = &openai.TranscriptionConfig{Model: cfg.Realtime.TranscriptionModel}
		params.Session = &sc
		return callFlags.sessionID, params, nil
	}

	mctx, cancel := context.WithTimeout(ctx, mintTimeout)
	defer cancel()
	resp, err := mintSession(mctx, otelClient(), api, callFlags.participant)
	if err != nil {
		return "", params, err
	}
	params.Provider = openai.Provider(resp.Provider)
	params.Model = resp.Model
	params.Token = resp.EphemeralKey
	if params.URL == "" {
		params.URL = resp.RealtimeURL
	}
	logger.Info("Session minted",
		"session", resp.SessionID,
		"provider", resp.Provider,
		"voice", resp.VoiceName,
		"expires_at", resp.ExpiresAt)
	return resp.SessionID, params, nil
}

func personaInstructions(cfg *config.Config, participant string) string {
	if cfg.Realtime.Instructions != "" {
		return cfg.Realtime.Instructions
	}
	return engine.DefaultProfile().Instructions(participant)
}

func otelClient() *http.Client {
	return &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
}

// mintSession creates a session through POST {api}/api/sessions.
func mintSession(ctx context.Context, client *http.Client, api, participant string) (*server.SessionResponse, error) {
	body, err := json.Marshal(server.CreateSessionRequest{ParticipantName: participant})
	if err != nil {
		return nil, err
	}
	endpoint := strings.TrimRight(api, "/") + "/api/sessions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create session request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("session request failed: %w", err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read session response: %w", err)
	}
	if res.StatusCode != http.StatusOK {
		var e struct {
			Detail any `json:"detail"`
		}
		if json.Unmarshal(data, &e) == nil && e.Detail != nil {
			return nil, fmt.Errorf("session request returned %d: %v", res.StatusCode, e.Detail)
		}
		return nil, fmt.Errorf("session request returned %d", res.StatusCode)
	}

	var out server.SessionResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to decode session response: %w", err)
	}
	if out.EphemeralKey == "" {
		return nil, errors.New("session response has no ephemeral key")
	}
	return &out, nil
}

// openInput opens the audio source. An empty path means no microphone.
// callInput opens the audio source selected by the call flags.
func callInput(ctx context.Context, stdin io.Reader) (io.ReadCloser, error) {
	if callFlags.mic {
		return openMicrophone(ctx)
	}
	return openInput(callFlags.input, stdin)
}

func openInput(path string, stdin io.Reader) (io.ReadCloser, error) {
	switch path {
	case "":
		return nil, nil
	case "-":
		return io.NopCloser(stdin), nil
	default:
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open input: %w", err)
		}
		return f, nil
	}
}

// chunkSize returns the PCM16 byte count for d at the realtime sample rate.
func chunkSize(d time.Duration) int {
	if d <= 0 {
		d = defaultChunk
	}
	samples := int(int64(openai.DefaultRealtimeSampleRate) * int64(d) / int64(time.Second))
	if samples < 1 {
		samples = 1
	}
	return samples * pcmBytesPerSample
}

// streamAudio paces r into push in real time. Chunks sent before the channel
// opens are dropped. It returns nil at end of input.
func streamAudio(ctx context.Context, r io.Reader, every time.Duration, push func([]byte) error) error {
	if every <= 0 {
		every = defaultChunk
	}
	buf := make([]byte, chunkSize(every))
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			chunk := make([]byte, n-n%pcmBytesPerSample)
			copy(chunk, buf)
			if perr := push(chunk); perr != nil && !errors.Is(perr, openai.ErrNotReady) {
				return perr
			}
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read input: %w", err)
		}
	}
}
