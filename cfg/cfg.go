package cfg

import (
	"fmt"
	"os"
	"time"

	"whisperclient/db"
	"whisperclient/internal/app/api"
	"whisperclient/pkg/resultstore"
	"whisperclient/pkg/s3client"
	"whisperclient/pkg/slg"
	"whisperclient/pkg/whisperx"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Whisper whisperx.Config `yaml:"whisper"`

	Batch BatchConfig `yaml:"batch"`

	Output resultstore.Config `yaml:"output"`
	S3     s3client.Config    `yaml:"s3"`

	Ledger db.Config `yaml:"ledger"`

	Api api.Config `yaml:"api"`

	InfluxDB slg.InfluxConfig `yaml:"influx"`
}

type BatchConfig struct {
	Views      []string      `yaml:"views"`
	Interval   time.Duration `yaml:"interval"`
	SkipIfDone *bool         `yaml:"skip_if_done"`
}

const DefaultInterval = 10 * time.Second

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("can't open %s file: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("can't unmarshal %s file: %w", path, err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// FromCredentials builds a config around a JSON credentials file, everything else
// keeps its defaults.
func FromCredentials(path string) (*Config, error) {
	creds, err := whisperx.LoadCredentials(path)
	if err != nil {
		return nil, err
	}

	cfg := Config{Whisper: *creds.Config()}
	cfg.applyDefaults()

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Whisper.Timeout <= 0 {
		c.Whisper.Timeout = whisperx.DefaultTimeout
	}
	if c.Whisper.OutputFolder == "" {
		c.Whisper.OutputFolder = "output"
	}
	if c.Batch.Interval <= 0 {
		c.Batch.Interval = DefaultInterval
	}
	if c.Batch.SkipIfDone == nil {
		skip := true
		c.Batch.SkipIfDone = &skip
	}
}
