// internal/config/config.go
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var (
	currentConfig *Config
	configMutex   sync.RWMutex
)

// Config holds everything the orchestrator needs at startup
type Config struct {
	Port      string `yaml:"port"`
	DataDir   string `yaml:"data_dir"`
	LogDir    string `yaml:"log_dir"`
	LogLevel  string `yaml:"log_level"`
	DebugMode bool   `yaml:"debug_mode"`

	Backend BackendConfig `yaml:"backend"`
	Render  RenderDefaults `yaml:"render"`

	// CTAMediaURL is the fixed media reference of the pinned call-to-action scene.
	CTAMediaURL string `yaml:"cta_media_url"`
}

// BackendConfig describes the remote AI/render service
type BackendConfig struct {
	BaseURL            string        `yaml:"base_url"`
	Token              string        `yaml:"token"`
	Timeout            time.Duration `yaml:"timeout"`
	PollInterval       time.Duration `yaml:"poll_interval"`
	StatusTimeout      time.Duration `yaml:"status_timeout"`
	FetchCacheTTL      time.Duration `yaml:"fetch_cache_ttl"`
	ResolveParallelism int           `yaml:"resolve_parallelism"`
}

// RenderDefaults seeds the render configuration of a new project
type RenderDefaults struct {
	FrameRate   string          `yaml:"frame_rate"`
	Resolution  string          `yaml:"resolution"`
	Transitions map[string]bool `yaml:"transitions"`
}

// Load reads configuration from the environment, then overlays CONFIG_FILE if set.
func Load() (*Config, error) {
	// .env is optional
	godotenv.Load()

	cfg := &Config{
		Port:      getEnv("PORT", "8080"),
		DataDir:   getEnv("DATA_DIR", "data"),
		LogDir:    getEnv("LOG_DIR", "logs"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		DebugMode: getEnvBool("DEBUG_MODE", false),
		Backend: BackendConfig{
			BaseURL:            strings.TrimRight(getEnv("BACKEND_URL", "http://localhost:3000"), "/"),
			Token:              getEnv("BACKEND_TOKEN", ""),
			Timeout:            getEnvDuration("BACKEND_TIMEOUT", 0),
			PollInterval:       getEnvDuration("POLL_INTERVAL", 3*time.Second),
			StatusTimeout:      getEnvDuration("STATUS_TIMEOUT", 15*time.Second),
			FetchCacheTTL:      getEnvDuration("FETCH_CACHE_TTL", 10*time.Minute),
			ResolveParallelism: getEnvInt("RESOLVE_PARALLELISM", 4),
		},
		Render: RenderDefaults{
			FrameRate:  getEnv("RENDER_FRAME_RATE", "standard"),
			Resolution: getEnv("RENDER_RESOLUTION", "standard"),
		},
		CTAMediaURL: getEnv("CTA_MEDIA_URL", "/assets/subscribe.mp4"),
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return nil, err
		}
	}

	if cfg.Backend.PollInterval <= 0 {
		cfg.Backend.PollInterval = 3 * time.Second
	}
	if cfg.Backend.ResolveParallelism <= 0 {
		cfg.Backend.ResolveParallelism = 1
	}
	if cfg.Backend.Token == "" {
		log.Println("warning: BACKEND_TOKEN is not set, requests to the backend are sent unauthenticated")
	}

	configMutex.Lock()
	currentConfig = cfg
	configMutex.Unlock()

	return cfg, nil
}

// overlayFile merges the YAML file at path over cfg. Zero values in the file leave cfg untouched.
func (c *Config) overlayFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	var fileCfg Config
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	mergeString(&c.Port, fileCfg.Port)
	mergeString(&c.DataDir, fileCfg.DataDir)
	mergeString(&c.LogDir, fileCfg.LogDir)
	mergeString(&c.LogLevel, fileCfg.LogLevel)
	mergeString(&c.CTAMediaURL, fileCfg.CTAMediaURL)
	if fileCfg.DebugMode {
		c.DebugMode = true
	}

	b := fileCfg.Backend
	if b.BaseURL != "" {
		c.Backend.BaseURL = strings.TrimRight(b.BaseURL, "/")
	}
	mergeString(&c.Backend.Token, b.Token)
	mergeDuration(&c.Backend.Timeout, b.Timeout)
	mergeDuration(&c.Backend.PollInterval, b.PollInterval)
	mergeDuration(&c.Backend.StatusTimeout, b.StatusTimeout)
	mergeDuration(&c.Backend.FetchCacheTTL, b.FetchCacheTTL)
	if b.ResolveParallelism > 0 {
		c.Backend.ResolveParallelism = b.ResolveParallelism
	}

	mergeString(&c.Render.FrameRate, fileCfg.Render.FrameRate)
	mergeString(&c.Render.Resolution, fileCfg.Render.Resolution)
	if len(fileCfg.Render.Transitions) > 0 {
		c.Render.Transitions = fileCfg.Render.Transitions
	}
	return nil
}

// GetCurrentConfig returns a copy of the last loaded configuration
func GetCurrentConfig() *Config {
	configMutex.RLock()
	defer configMutex.RUnlock()

	if currentConfig == nil {
		return nil
	}
	configCopy := *currentConfig
	return &configCopy
}

func mergeString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func mergeDuration(dst *time.Duration, v time.Duration) {
	if v != 0 {
		*dst = v
	}
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	return value == "true" || value == "1" || value == "yes"
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("warning: %s=%q is not an integer, using %d", key, value, defaultValue)
		return defaultValue
	}
	return n
}

// getEnvDuration accepts Go durations ("3s") or bare milliseconds ("3000").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	log.Printf("warning: %s=%q is not a duration, using %s", key, value, defaultValue)
	return defaultValue
}
