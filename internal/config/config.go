package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the mirror daemon configuration.
type Config struct {
	DataDir    string `yaml:"data_dir"`
	OutfitsDir string `yaml:"outfits_dir"`
	// DatabasePath defaults to <data_dir>/outfits.db.
	DatabasePath string `yaml:"database_path"`

	Sensing  SensingConfig  `yaml:"sensing"`
	History  HistoryConfig  `yaml:"history"`
	Speech   SpeechConfig   `yaml:"speech"`
	Services ServicesConfig `yaml:"services"`
	Devices  DevicesConfig  `yaml:"devices"`

	// HTTPAddr enables the REST front end when non-empty.
	HTTPAddr string `yaml:"http_addr"`
	// DisplayURL is the websocket bus of the mirror display, if any.
	DisplayURL string `yaml:"display_url"`
}

type SensingConfig struct {
	Cooldown time.Duration `yaml:"cooldown"`
	Interval time.Duration `yaml:"interval"`
}

type HistoryConfig struct {
	DedupWindow time.Duration `yaml:"dedup_window"`
	SummarySize int           `yaml:"summary_size"`
}

type SpeechConfig struct {
	StartTimeout time.Duration `yaml:"start_timeout"`
	PhraseLimit  time.Duration `yaml:"phrase_limit"`
	Language     string        `yaml:"language"`
	Voice        string        `yaml:"voice"`
	Rate         int           `yaml:"rate"`
}

type ServicesConfig struct {
	RequestTimeout time.Duration `yaml:"request_timeout"`
	DefaultCity    string        `yaml:"default_city"`

	OpenAIBaseURL string `yaml:"openai_base_url"`
	OpenAIModel   string `yaml:"openai_model"`
	VisionModel   string `yaml:"vision_model"`
	OpenAIKey     string `yaml:"-"`

	WeatherBaseURL string `yaml:"weather_base_url"`
	WeatherKey     string `yaml:"-"`
	GeoURL         string `yaml:"geo_url"`

	ProxyAddr string `yaml:"proxy_addr"`
}

type DevicesConfig struct {
	Camera       string `yaml:"camera"`
	WhisperModel string `yaml:"whisper_model"`
	CueSound     string `yaml:"cue_sound"`
}

func Default() Config {
	return Config{
		DataDir:    "data",
		OutfitsDir: "outfits",
		Sensing: SensingConfig{
			Cooldown: 30 * time.Second,
			Interval: 500 * time.Millisecond,
		},
		History: HistoryConfig{
			DedupWindow: 7 * 24 * time.Hour,
			SummarySize: 5,
		},
		Speech: SpeechConfig{
			StartTimeout: 5 * time.Second,
			PhraseLimit:  6 * time.Second,
			Language:     "en",
			Voice:        "en",
			Rate:         170,
		},
		Services: ServicesConfig{
			RequestTimeout: 20 * time.Second,
			DefaultCity:    "Bangalore",
			OpenAIBaseURL:  "https://api.openai.com/v1",
			OpenAIModel:    "gpt-4o-mini",
			VisionModel:    "gpt-4o-mini",
			WeatherBaseURL: "https://api.openweathermap.org/data/2.5",
			GeoURL:         "https://ipinfo.io/json",
		},
		Devices: DevicesConfig{
			Camera:       "/dev/video0",
			WhisperModel: "third_party/whisper.cpp/models/ggml-base.en.bin",
			CueSound:     "beep.mp3",
		},
	}
}

// Load builds a Config from defaults, then the YAML file at path (a
// missing file is not an error), then environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	applyEnv(&cfg)

	if cfg.DatabasePath == "" {
		cfg.DatabasePath = filepath.Join(cfg.DataDir, "outfits.db")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Services.OpenAIKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	cfg.Services.WeatherKey = strings.TrimSpace(os.Getenv("OPENWEATHER_API_KEY"))

	if v := os.Getenv("MIRROR_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("MIRROR_DATABASE_PATH"); v != "" {
		cfg.DatabasePath = v
	}
	if v := os.Getenv("MIRROR_DISPLAY_URL"); v != "" {
		cfg.DisplayURL = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		cfg.Services.OpenAIBaseURL = v
	}
	if v := os.Getenv("WHISPER_MODEL"); v != "" {
		cfg.Devices.WhisperModel = v
	}
}

func (c Config) Validate() error {
	if c.Sensing.Cooldown < 0 {
		return fmt.Errorf("sensing.cooldown must be >= 0")
	}
	if c.Sensing.Interval <= 0 {
		return fmt.Errorf("sensing.interval must be > 0")
	}
	if c.History.DedupWindow <= 0 {
		return fmt.Errorf("history.dedup_window must be > 0")
	}
	if c.History.SummarySize <= 0 {
		return fmt.Errorf("history.summary_size must be > 0")
	}
	if c.Speech.StartTimeout <= 0 || c.Speech.PhraseLimit <= 0 {
		return fmt.Errorf("speech timeouts must be > 0")
	}
	if c.Services.RequestTimeout <= 0 {
		return fmt.Errorf("services.request_timeout must be > 0")
	}
	if strings.TrimSpace(c.Services.DefaultCity) == "" {
		return fmt.Errorf("services.default_city is required")
	}
	return nil
}
