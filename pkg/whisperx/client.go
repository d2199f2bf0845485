package whisperx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"whisperclient/pkg/resultstore"
	"whisperclient/pkg/tools"
)

const (
	DefaultTimeout = 100 * time.Second

	maxTransportAttempts = 10
	maxPollRetries       = 10

	apiKeyHeader = "X-API-Key"
	uploadMime   = "audio/wav"
)

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type Config struct {
	APIKey string `yaml:"api_key"`
	Scheme string `yaml:"scheme"`
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`

	AudioFolder   string `yaml:"audio_folder"`
	OutputFolder  string `yaml:"output_folder"`
	ErasePrevious bool   `yaml:"erase_previous"`

	Timeout time.Duration `yaml:"timeout"`
}

// ResultWriter stores an encoded result under key. Relative keys are resolved by the
// writer, absolute ones are explicit destinations. written is false when the overwrite
// policy kept an existing copy.
type ResultWriter interface {
	Write(ctx context.Context, key, contentType string, data []byte) (written bool, err error)
}

// Ledger records what was submitted and where results went. Optional.
type Ledger interface {
	RecordJob(ctx context.Context, hash, path, status string, launched bool) error
	RecordResult(ctx context.Context, hash, view, location string) error
}

// Waiter suspends the caller for d or until ctx is done.
type Waiter func(ctx context.Context, d time.Duration) error

func Wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type Option func(c *Client)

func WithResultWriter(w ResultWriter) Option {
	return func(c *Client) {
		c.results = w
	}
}

func WithLedger(l Ledger) Option {
	return func(c *Client) {
		c.ledger = l
	}
}

func WithWaiter(w Waiter) Option {
	return func(c *Client) {
		c.wait = w
	}
}

type Client struct {
	httpClient HTTPClient
	cfg        *Config
	logger     *slog.Logger

	baseURL *url.URL
	apiKey  string

	results ResultWriter
	ledger  Ledger
	wait    Waiter

	lock    sync.Mutex
	current *JobHandle
}

func New(httpClient HTTPClient, cfg *Config, logger *slog.Logger, opts ...Option) (*Client, error) {
	scheme, err := ParseScheme(cfg.Scheme)
	if err != nil {
		return nil, err
	}

	if cfg.Host == "" {
		return nil, errors.New("api host is required")
	}

	host := cfg.Host
	if cfg.Port != 0 {
		if cfg.Port < 0 || cfg.Port > 65535 {
			return nil, fmt.Errorf("invalid api port %d", cfg.Port)
		}
		host = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	}

	c := &Client{
		httpClient: httpClient,
		cfg:        cfg,
		logger:     logger,

		baseURL: &url.URL{Scheme: string(scheme), Host: host},
		apiKey:  escapeAPIKey(cfg.APIKey),

		wait: Wait,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.results == nil {
		c.results = resultstore.NewLocal(cfg.OutputFolder, cfg.ErasePrevious)
	}

	return c, nil
}

// BaseURL is scheme://host:port of the transcription service.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

func (c *Client) Close() {
	if closer, ok := c.httpClient.(interface{ CloseIdleConnections() }); ok {
		closer.CloseIdleConnections()
	}
}

// Current returns the most recently touched job.
func (c *Client) Current() (JobHandle, bool) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.current == nil {
		return JobHandle{}, false
	}

	return *c.current, true
}

func (c *Client) setCurrent(job JobHandle) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.current = &job
}

func (c *Client) setCurrentStatus(hash ContentHash, status Status) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.current != nil && c.current.Hash == hash {
		c.current.Status = status
		return
	}

	c.current = &JobHandle{Hash: hash, Status: status}
}

func (c *Client) resolve(hash ContentHash) (ContentHash, error) {
	if hash != "" {
		return hash, nil
	}

	if job, ok := c.Current(); ok {
		return job.Hash, nil
	}

	return "", ErrNoJob
}

// escapeAPIKey percent-encodes every byte except letters, digits, "_.-~" and "/".
func escapeAPIKey(key string) string {
	const hexDigits = "0123456789ABCDEF"

	var b strings.Builder
	for i := 0; i < len(key); i++ {
		c := key[i]
		switch {
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9',
			c == '_', c == '.', c == '-', c == '~', c == '/':
			b.WriteByte(c)
		default:
			b.WriteByte('%')
			b.WriteByte(hexDigits[c>>4])
			b.WriteByte(hexDigits[c&0x0f])
		}
	}

	return b.String()
}

type errorEnvelope struct {
	Error json.RawMessage `json:"error"`
}

func (c *Client) do(ctx context.Context, op, method, path string, body []byte, contentType string, out any) error {
	reqURL := *c.baseURL
	reqURL.Path = path

	start := time.Now()

	var (
		response *http.Response
		err      error
		attempt  int
	)

	for attempt = 1; attempt <= maxTransportAttempts; attempt++ {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}

		request, reqErr := http.NewRequestWithContext(ctx, method, reqURL.String(), reader)
		if reqErr != nil {
			return fmt.Errorf("failed to create %s http request: %w", op, reqErr)
		}

		request.Header.Set(apiKeyHeader, c.apiKey)
		if contentType != "" {
			request.Header.Set("Content-Type", contentType)
		}

		response, err = c.httpClient.Do(request)
		if err == nil {
			break
		}

		if ctx.Err() != nil || !isConnReset(err) {
			break
		}

		c.logger.Debug("connection reset, retrying", "op", op, "attempt", attempt)
	}

	if err != nil {
		if attempt > maxTransportAttempts {
			attempt = maxTransportAttempts
		}
		transportErr := &TransportError{Op: op, Attempts: attempt, Err: err}
		metrics.Errors.WithLabelValues(errCodeLabel(transportErr)).Inc()
		return transportErr
	}
	defer tools.DrainAndClose(response.Body)

	responseData, err := io.ReadAll(response.Body)
	if err != nil {
		transportErr := &TransportError{Op: op, Attempts: attempt, Err: fmt.Errorf("failed to read http response body: %w", err)}
		metrics.Errors.WithLabelValues(errCodeLabel(transportErr)).Inc()
		return transportErr
	}

	metrics.RequestTime.WithLabelValues(op).Observe(time.Since(start).Seconds())

	if err := decodeResponse(op, response.StatusCode, responseData, out); err != nil {
		metrics.Errors.WithLabelValues(errCodeLabel(err)).Inc()
		return err
	}

	return nil
}

func decodeResponse(op string, statusCode int, data []byte, out any) error {
	var envelope errorEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		if statusCode < 200 || statusCode > 299 {
			return &ProtocolError{Op: op, StatusCode: statusCode, Message: strings.TrimSpace(string(data))}
		}
		return &ProtocolError{Op: op, StatusCode: statusCode, Message: "response is not valid json: " + err.Error()}
	}

	if len(envelope.Error) > 0 && string(envelope.Error) != "null" {
		var msg string
		if err := json.Unmarshal(envelope.Error, &msg); err != nil {
			msg = string(envelope.Error)
		}
		return &ProtocolError{Op: op, StatusCode: statusCode, Message: "server error: " + msg}
	}

	if statusCode < 200 || statusCode > 299 {
		return &ProtocolError{Op: op, StatusCode: statusCode, Message: http.StatusText(statusCode)}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return &ProtocolError{Op: op, StatusCode: statusCode, Message: "failed to unmarshal response: " + err.Error()}
	}

	return nil
}

func isConnReset(err error) bool {
	return errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF)
}
