package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"golang.org/x/time/rate"

	"github.com/dgnsrekt/habla/internal/ttypes"
)

// FallbackReply is used when the reply endpoint returns something that
// cannot be decoded.
const FallbackReply = "Lo siento, no entendí. ¿Puedes repetirlo?"

// maxErrorBody bounds how much of an error body is kept.
const maxErrorBody = 4096

// Config configures the relay client.
type Config struct {
	BaseURL string
	Timeout time.Duration

	// STTAttempts is the total number of transcription attempts.
	STTAttempts int
	// STTBackoff is multiplied by the attempt number between retries.
	STTBackoff time.Duration

	// SynthesisRate and SynthesisBurst limit /tts requests.
	SynthesisRate  float64
	SynthesisBurst int
}

// DefaultConfig returns the default relay configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL:        "http://localhost:8787",
		Timeout:        30 * time.Second,
		STTAttempts:    3,
		STTBackoff:     250 * time.Millisecond,
		SynthesisRate:  4,
		SynthesisBurst: 4,
	}
}

// Client talks to the relay backend.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	logger  *log.Logger
	sleep   func(context.Context, time.Duration) error
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a relay client.
func NewClient(cfg Config, opts ...Option) *Client {
	if cfg.STTAttempts <= 0 {
		cfg.STTAttempts = 1
	}
	limit := rate.Inf
	if cfg.SynthesisRate > 0 {
		limit = rate.Limit(cfg.SynthesisRate)
	}
	burst := cfg.SynthesisBurst
	if burst <= 0 {
		burst = 1
	}
	c := &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(limit, burst),
		logger:  log.Default().WithPrefix("relay"),
		sleep:   sleepCtx,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.cfg.BaseURL = strings.TrimRight(c.cfg.BaseURL, "/")
	return c
}

// BaseURL returns the relay base URL.
func (c *Client) BaseURL() string { return c.cfg.BaseURL }

// Transcribe uploads a recording to /stt and returns the transcript.
// Undecodable containers and transport errors are retried.
func (c *Client) Transcribe(ctx context.Context, blob *ttypes.Blob) (string, error) {
	if blob == nil || len(blob.Data) == 0 {
		return "", ttypes.NewError(ttypes.KindInput, "transcribe", ErrEmptyAudio)
	}

	var lastErr error
	for attempt := 1; attempt <= c.cfg.STTAttempts; attempt++ {
		text, err := c.transcribeOnce(ctx, blob)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return "", ttypes.NewError(ttypes.KindCanceled, "transcribe", ctx.Err())
		}
		if !retryable(err) || attempt == c.cfg.STTAttempts {
			break
		}
		c.logger.Debug("retrying transcription", "attempt", attempt, "err", err)
		if err := c.sleep(ctx, c.cfg.STTBackoff*time.Duration(attempt)); err != nil {
			return "", ttypes.NewError(ttypes.KindCanceled, "transcribe", err)
		}
	}

	if errors.Is(lastErr, ErrUndecodable) {
		return "", ttypes.NewError(ttypes.KindEncoding, "transcribe", lastErr)
	}
	return "", ttypes.NewError(ttypes.KindNetwork, "transcribe", lastErr)
}

func (c *Client) transcribeOnce(ctx context.Context, blob *ttypes.Blob) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("audio", "audio"+blob.Extension())
	if err != nil {
		_ = mw.Close()
		return "", err
	}
	if _, err := fw.Write(blob.Data); err != nil {
		_ = mw.Close()
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/stt", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	c.logger.Debug("uploading recording", "mime", blob.MimeType, "size", humanize.Bytes(uint64(len(blob.Data))))
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", statusError("/stt", resp)
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode /stt response: %w", err)
	}
	return strings.TrimSpace(out.Text), nil
}

type chatMessage struct {
	Role    ttypes.Role `json:"role"`
	Content string      `json:"content"`
}

type chatRequest struct {
	Messages  []chatMessage `json:"messages"`
	Translate bool          `json:"translate"`
}

// Reply sends the conversation to /chat. A malformed body yields
// FallbackReply rather than an error.
func (c *Client) Reply(ctx context.Context, history []ttypes.Message, translate bool) (ttypes.Reply, error) {
	payload := chatRequest{Messages: make([]chatMessage, 0, len(history)), Translate: translate}
	for _, m := range history {
		payload.Messages = append(payload.Messages, chatMessage{Role: m.Role, Content: m.Text})
	}

	resp, err := c.postJSON(ctx, "/chat", payload)
	if err != nil {
		return ttypes.Reply{}, c.classify("reply", ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return ttypes.Reply{}, ttypes.NewError(ttypes.KindNetwork, "reply", statusError("/chat", resp))
	}

	var out ttypes.Reply
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil || strings.TrimSpace(out.Reply) == "" {
		c.logger.Warn("malformed reply, using fallback", "err", err)
		return ttypes.Reply{Reply: FallbackReply}, nil
	}
	return out, nil
}

// Synthesize requests speech for text from /tts and returns the audio
// bytes and their content type.
func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, "", ttypes.NewError(ttypes.KindInput, "synthesize", ErrEmptyText)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, "", ttypes.NewError(ttypes.KindCanceled, "synthesize", err)
	}

	resp, err := c.postJSON(ctx, "/tts", map[string]string{"text": text})
	if err != nil {
		return nil, "", c.classify("synthesize", ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", ttypes.NewError(ttypes.KindNetwork, "synthesize", statusError("/tts", resp))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", c.classify("synthesize", ctx, err)
	}
	if len(data) == 0 {
		return nil, "", ttypes.NewError(ttypes.KindPlayback, "synthesize", ErrEmptyAudio)
	}
	mime := resp.Header.Get("Content-Type")
	if mime == "" {
		mime = ttypes.MimeMPEG
	}
	c.logger.Debug("synthesized", "chars", len(text), "size", humanize.Bytes(uint64(len(data))))
	return data, mime, nil
}

// Ping checks that the relay answers at all.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return ttypes.NewError(ttypes.KindNetwork, "ping", err)
	}
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		return ttypes.NewError(ttypes.KindNetwork, "ping", fmt.Errorf("status %d", resp.StatusCode))
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, path string, v any) (*http.Response, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.http.Do(req)
}

func (c *Client) classify(op string, ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ttypes.NewError(ttypes.KindCanceled, op, ctx.Err())
	}
	return ttypes.NewError(ttypes.KindNetwork, op, err)
}

// statusError reads a bounded diagnostic body. Bodies mentioning a decode
// failure are reported as ErrUndecodable.
func statusError(endpoint string, resp *http.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	se := &StatusError{Endpoint: endpoint, Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	if strings.Contains(strings.ToLower(se.Body), "could not be decoded") {
		return fmt.Errorf("%w: %v", ErrUndecodable, se)
	}
	return se
}

// retryable reports whether a transcription attempt may be repeated:
// decode failures, transport errors and server errors.
func retryable(err error) bool {
	if errors.Is(err, ErrUndecodable) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= 500
	}
	return true
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
