package bananastore

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/bananastore/bananastore.go/pkg/channel"
	"github.com/bananastore/bananastore.go/pkg/logger"
	"github.com/bananastore/bananastore.go/pkg/tokenstore"
)

// Client wraps the request channel with typed methods for the backend's
// action catalog. Every method goes through the same channel; the only
// per-action distinction is the longer generate timeout.
type Client struct {
	channel *channel.Channel

	callTimeout     time.Duration
	generateTimeout time.Duration

	logPath  string
	logLevel zerolog.Level
	logFile  *os.File
}

// Option customizes a Client during Connect.
type Option func(*Client, *channel.Config)

// WithToken supplies a fresh session token from the host. It overrides
// any token cached in the store.
func WithToken(token string) Option {
	return func(_ *Client, cfg *channel.Config) {
		cfg.Token = token
	}
}

// WithStore persists session tokens per origin for reuse across restarts.
func WithStore(store tokenstore.Store) Option {
	return func(_ *Client, cfg *channel.Config) {
		cfg.Store = store
	}
}

// WithLogger routes the SDK's logs to l.
func WithLogger(l zerolog.Logger) Option {
	return func(_ *Client, cfg *channel.Config) {
		cfg.Logger = &l
	}
}

// WithLogFile appends the SDK's logs to the named file at the given
// level. Connect opens the file and Close closes it. An explicit
// WithLogger takes precedence.
func WithLogFile(path string, level zerolog.Level) Option {
	return func(c *Client, _ *channel.Config) {
		c.logPath = path
		c.logLevel = level
	}
}

// WithBackoff overrides the reconnect delay bounds.
func WithBackoff(floor, cap time.Duration) Option {
	return func(_ *Client, cfg *channel.Config) {
		cfg.BackoffFloor = floor
		cfg.BackoffCap = cap
	}
}

// WithCallTimeout overrides the per-request timeouts. generate is the
// slow path and gets its own bound.
func WithCallTimeout(call, generate time.Duration) Option {
	return func(c *Client, _ *channel.Config) {
		c.callTimeout = call
		c.generateTimeout = generate
	}
}

// Connect builds a client for the given ws:// or wss:// endpoint and
// establishes the connection, blocking until the server's
// authentication push arrives.
func Connect(ctx context.Context, url string, opts ...Option) (*Client, error) {
	cfg := channel.Config{URL: url}

	c := &Client{
		callTimeout:     channel.DefaultCallTimeout,
		generateTimeout: channel.GenerateCallTimeout,
	}
	for _, opt := range opts {
		opt(c, &cfg)
	}

	if c.logPath != "" && cfg.Logger == nil {
		logData, err := logger.New().FromPath(c.logPath).WithLevel(c.logLevel).Make()
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		c.logFile = logData.LogFile
		cfg.Logger = &logData.Logger
	}

	ch, err := channel.New(cfg)
	if err != nil {
		c.closeLogFile()
		return nil, err
	}
	c.channel = ch

	if err := ch.Conn().Connect(ctx); err != nil {
		closeCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = ch.Conn().Close(closeCtx)
		c.closeLogFile()
		return nil, err
	}

	return c, nil
}

func (c *Client) closeLogFile() {
	if c.logFile != nil {
		c.logFile.Close()
		c.logFile = nil
	}
}

// Close shuts the connection down. In-flight calls fail with
// channel.ErrChannelClosed.
func (c *Client) Close(ctx context.Context) error {
	err := c.channel.Conn().Close(ctx)
	c.closeLogFile()
	return err
}

// Token returns the current session token.
func (c *Client) Token() string {
	return c.channel.Conn().Token()
}

// Channel exposes the underlying request channel for callers that need
// raw actions beyond the typed catalog.
func (c *Client) Channel() *channel.Channel {
	return c.channel
}

func (c *Client) call(ctx context.Context, action string, payload, dest any, timeout time.Duration) error {
	raw, err := c.channel.Call(ctx, action, payload, timeout)
	if err != nil {
		return err
	}
	if dest == nil || len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dest)
}

// Providers returns the capability map of every configured provider.
func (c *Client) Providers(ctx context.Context) (map[string]ProviderCapabilities, error) {
	var res struct {
		Providers map[string]ProviderCapabilities `json:"providers"`
	}
	if err := c.call(ctx, "providers", struct{}{}, &res, c.callTimeout); err != nil {
		return nil, err
	}
	return res.Providers, nil
}

// Generate synthesizes an image. It uses the long timeout: provider
// latency on generation is far above the other actions.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	var res GenerateResult
	if err := c.call(ctx, "generate", req, &res, c.generateTimeout); err != nil {
		return nil, err
	}
	return &res, nil
}

// DescribeImage asks the backend for a textual description of an image,
// given as a data URL.
func (c *Client) DescribeImage(ctx context.Context, imageDataURL, sourceText, language string) (string, error) {
	payload := map[string]string{
		"image_data_url": imageDataURL,
		"source_text":    sourceText,
		"language":       language,
	}
	var res struct {
		Description string `json:"description"`
	}
	if err := c.call(ctx, "describe-image", payload, &res, c.callTimeout); err != nil {
		return "", err
	}
	return res.Description, nil
}

// SuggestFilename derives a download filename from a description.
func (c *Client) SuggestFilename(ctx context.Context, description string) (string, error) {
	payload := map[string]string{"description": description}
	var res struct {
		Filename string `json:"filename"`
	}
	if err := c.call(ctx, "suggest-filename", payload, &res, c.callTimeout); err != nil {
		return "", err
	}
	return res.Filename, nil
}

// TTS synthesizes speech for text and returns the audio bytes. Audio
// crosses the wire base64-encoded.
func (c *Client) TTS(ctx context.Context, text, language string) ([]byte, error) {
	payload := map[string]string{"text": text, "language": language}
	var res struct {
		AudioB64 string `json:"audio_b64"`
	}
	if err := c.call(ctx, "tts", payload, &res, c.callTimeout); err != nil {
		return nil, err
	}
	return base64.StdEncoding.DecodeString(res.AudioB64)
}

// Transcribe converts recorded audio to text.
func (c *Client) Transcribe(ctx context.Context, audio []byte, filename, contentType string) (string, error) {
	payload := map[string]string{
		"audio_b64":    base64.StdEncoding.EncodeToString(audio),
		"filename":     filename,
		"content_type": contentType,
	}
	var res struct {
		Text string `json:"text"`
	}
	if err := c.call(ctx, "transcribe", payload, &res, c.callTimeout); err != nil {
		return "", err
	}
	return res.Text, nil
}

// Costs returns the session's aggregated spending.
func (c *Client) Costs(ctx context.Context) (*CostSummary, error) {
	var res CostSummary
	if err := c.call(ctx, "costs", struct{}{}, &res, c.callTimeout); err != nil {
		return nil, err
	}
	return &res, nil
}

// CostsHistory returns the session's individual charges.
func (c *Client) CostsHistory(ctx context.Context) ([]CostEntry, error) {
	var res []CostEntry
	if err := c.call(ctx, "costs-history", struct{}{}, &res, c.callTimeout); err != nil {
		return nil, err
	}
	return res, nil
}

// SetCostLimit sets or clears (nil) the session's spending limit and
// returns the limit now in force.
func (c *Client) SetCostLimit(ctx context.Context, limitUSD *float64) (*float64, error) {
	payload := map[string]*float64{"limit_usd": limitUSD}
	var res struct {
		LimitUSD *float64 `json:"limit_usd"`
	}
	if err := c.call(ctx, "costs-limit", payload, &res, c.callTimeout); err != nil {
		return nil, err
	}
	return res.LimitUSD, nil
}
