package whisperx

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"
)

type Credentials struct {
	APIKey    string `json:"api_key"`
	APIScheme string `json:"api_scheme"`
	APIHost   string `json:"api_host"`
	APIPort   int    `json:"api_port"`

	AudioFolder   string `json:"audio_folder"`
	VideoFolder   string `json:"video_folder"`
	OutputFolder  string `json:"output_folder"`
	ErasePrevious bool   `json:"erase_previous"`
}

func LoadCredentials(path string) (*Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}

	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("failed to unmarshal credentials file: %w", err)
	}

	if creds.AudioFolder != "" && creds.VideoFolder != "" {
		return nil, errors.New("credentials set both audio_folder and video_folder, only one input folder is allowed")
	}

	return &creds, nil
}

func (c *Credentials) Config() *Config {
	return &Config{
		APIKey: c.APIKey,
		Scheme: c.APIScheme,
		Host:   c.APIHost,
		Port:   c.APIPort,

		AudioFolder:   c.AudioFolder,
		OutputFolder:  c.OutputFolder,
		ErasePrevious: c.ErasePrevious,

		Timeout: DefaultTimeout,
	}
}

// FromCredentials builds a client with its own pooled http.Client from a JSON
// credentials file.
func FromCredentials(path string, logger *slog.Logger, opts ...Option) (*Client, error) {
	creds, err := LoadCredentials(path)
	if err != nil {
		return nil, err
	}

	cfg := creds.Config()

	return New(NewHTTPClient(cfg.Timeout), cfg, logger, opts...)
}

func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = 4

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
