// Package voicevox is a client for the VOICEVOX engine HTTP API.
package voicevox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const (
	DefaultURL              = "http://localhost:50021"
	DefaultQueryTimeout     = 30 * time.Second
	DefaultSynthesisTimeout = 60 * time.Second

	maxErrorBody = 512
)

// Synthesizer turns text into WAV audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Options tune the voice and the per-call deadlines.
type Options struct {
	Speaker          int
	SpeedScale       float64
	IntonationScale  float64
	QueryTimeout     time.Duration
	SynthesisTimeout time.Duration
}

// Client talks to a running VOICEVOX engine.
type Client struct {
	baseURL string
	opts    Options
	client  *http.Client
}

// New creates a client for the engine at baseURL.
func New(baseURL string, opts Options) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("voicevox: invalid url %q", baseURL)
	}
	if opts.Speaker < 0 {
		return nil, errors.New("voicevox: speaker must not be negative")
	}
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = DefaultQueryTimeout
	}
	if opts.SynthesisTimeout <= 0 {
		opts.SynthesisTimeout = DefaultSynthesisTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		opts:    opts,
		client:  &http.Client{},
	}, nil
}

// Synthesize builds an audio query for text, applies the configured speed
// and intonation, and renders it to WAV.
func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, error) {
	query, err := c.AudioQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	query, err = c.tune(query)
	if err != nil {
		return nil, err
	}
	return c.Synthesis(ctx, query)
}

// AudioQuery asks the engine for the synthesis parameters of text. The
// result is returned as raw JSON so fields the client does not know about
// survive the round trip to Synthesis.
func (c *Client) AudioQuery(ctx context.Context, text string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.QueryTimeout)
	defer cancel()

	params := url.Values{}
	params.Set("text", text)
	params.Set("speaker", strconv.Itoa(c.opts.Speaker))

	body, err := c.do(ctx, http.MethodPost, "/audio_query?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("voicevox: audio_query: %w", err)
	}
	if !gjson.ValidBytes(body) || !gjson.ParseBytes(body).IsObject() {
		return nil, errors.New("voicevox: audio_query: response is not a JSON object")
	}
	return body, nil
}

// Synthesis renders a prepared audio query to WAV bytes.
func (c *Client) Synthesis(ctx context.Context, query []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.SynthesisTimeout)
	defer cancel()

	path := "/synthesis?speaker=" + strconv.Itoa(c.opts.Speaker)
	audio, err := c.do(ctx, http.MethodPost, path, query)
	if err != nil {
		return nil, fmt.Errorf("voicevox: synthesis: %w", err)
	}
	if len(audio) == 0 {
		return nil, errors.New("voicevox: synthesis: empty audio")
	}
	return audio, nil
}

// Version returns the engine version string.
func (c *Client) Version(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.QueryTimeout)
	defer cancel()

	body, err := c.do(ctx, http.MethodGet, "/version", nil)
	if err != nil {
		return "", fmt.Errorf("voicevox: version: %w", err)
	}
	if v := gjson.ParseBytes(body); v.Type == gjson.String {
		return v.String(), nil
	}
	return strings.TrimSpace(string(body)), nil
}

func (c *Client) tune(query []byte) ([]byte, error) {
	var err error
	if c.opts.SpeedScale > 0 {
		if query, err = sjson.SetBytes(query, "speedScale", c.opts.SpeedScale); err != nil {
			return nil, fmt.Errorf("voicevox: set speedScale: %w", err)
		}
	}
	if c.opts.IntonationScale > 0 {
		if query, err = sjson.SetBytes(query, "intonationScale", c.opts.IntonationScale); err != nil {
			return nil, fmt.Errorf("voicevox: set intonationScale: %w", err)
		}
	}
	return query, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(data))
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody]
		}
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, msg)
	}
	return data, nil
}
