// Package config loads the service settings from a config.env file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"github.com/vm-affekt/streamfetch/internal/app"
	"github.com/vm-affekt/streamfetch/internal/logging"
)

const EnvPrefix = "STREAMFETCH"

const (
	EngineYtDlp = "ytdlp"
	EngineYtLib = "ytlib"
)

var ConfigPaths = []string{"/etc/streamfetch", "./configs", "."}

type Config struct {
	Mode        string
	LogFilePath string
	Port        int

	Engine           string
	OutputMode       app.OutputMode
	YtDlpPath        string
	FFmpegPath       string
	ScratchDir       string
	DownloadTimeout  time.Duration
	KillGrace        time.Duration
	Cookie           string
	CookiesFile      string
	ResolveTitle     bool
	ResolveRedirects bool
	AllowedOrigins   []string
	RelayChunkSize   int
	RelayBuffers     int
	ScratchMaxAge    time.Duration
	ShutdownTimeout  time.Duration

	// ConfigFileUsed is empty when only the environment was read.
	ConfigFileUsed string
}

// New returns a viper instance set up the way Load reads it. The config file
// is searched in paths, ConfigPaths when none are given.
func New(paths ...string) *viper.Viper {
	if len(paths) == 0 {
		paths = ConfigPaths
	}
	v := viper.New()
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetConfigName("config")
	v.SetConfigType("env")
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("MODE", logging.ModeDebug)
	v.SetDefault("PORT", 4000)
	v.SetDefault("ENGINE", EngineYtDlp)
	v.SetDefault("OUTPUT_MODE", "stream")
	v.SetDefault("YTDLP_PATH", "yt-dlp")
	v.SetDefault("FFMPEG_PATH", "ffmpeg")
	v.SetDefault("SCRATCH_DIR", os.TempDir())
	v.SetDefault("DOWNLOAD_TIMEOUT", 300*time.Second)
	v.SetDefault("KILL_GRACE", 5*time.Second)
	v.SetDefault("ALLOWED_ORIGINS", "*")
	v.SetDefault("RELAY_CHUNK_KB", 32)
	v.SetDefault("RELAY_BUFFERS", 8)
	v.SetDefault("RESOLVE_TITLE", true)
	v.SetDefault("RESOLVE_REDIRECTS", true)
	v.SetDefault("SCRATCH_MAX_AGE", time.Hour)
	v.SetDefault("SHUTDOWN_TIMEOUT", 10*time.Second)
}

// LoadDotEnv loads .env files into the process environment. Missing files are
// not an error.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var existing []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("failed to load %v: %w", existing, err)
	}
	return nil
}

// Load reads the config file if there is one and merges the environment over it.
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config (used file: %q): %w", v.ConfigFileUsed(), err)
		}
	}

	outputMode, err := app.ParseOutputMode(v.GetString("OUTPUT_MODE"))
	if err != nil {
		return nil, err
	}

	// hosting platforms set a bare PORT; anything more specific wins over it
	if env := os.Getenv("PORT"); env != "" {
		v.SetDefault("PORT", env)
	}

	cfg := &Config{
		Mode:             strings.TrimSpace(v.GetString("MODE")),
		LogFilePath:      v.GetString("LOG_FILE_PATH"),
		Port:             v.GetInt("PORT"),
		Engine:           strings.ToLower(strings.TrimSpace(v.GetString("ENGINE"))),
		OutputMode:       outputMode,
		YtDlpPath:        v.GetString("YTDLP_PATH"),
		FFmpegPath:       v.GetString("FFMPEG_PATH"),
		ScratchDir:       v.GetString("SCRATCH_DIR"),
		DownloadTimeout:  v.GetDuration("DOWNLOAD_TIMEOUT"),
		KillGrace:        v.GetDuration("KILL_GRACE"),
		Cookie:           v.GetString("COOKIE"),
		CookiesFile:      v.GetString("COOKIES_FILE"),
		ResolveTitle:     v.GetBool("RESOLVE_TITLE"),
		ResolveRedirects: v.GetBool("RESOLVE_REDIRECTS"),
		AllowedOrigins:   splitList(v.GetString("ALLOWED_ORIGINS")),
		RelayChunkSize:   v.GetInt("RELAY_CHUNK_KB") * 1024,
		RelayBuffers:     v.GetInt("RELAY_BUFFERS"),
		ScratchMaxAge:    v.GetDuration("SCRATCH_MAX_AGE"),
		ShutdownTimeout:  v.GetDuration("SHUTDOWN_TIMEOUT"),
		ConfigFileUsed:   v.ConfigFileUsed(),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Mode {
	case logging.ModeProduction, logging.ModeDebug, "":
	default:
		return fmt.Errorf("unknown MODE %q: use %q, %q or leave it empty", c.Mode, logging.ModeProduction, logging.ModeDebug)
	}
	switch c.Engine {
	case EngineYtDlp:
	case EngineYtLib:
		if c.OutputMode == app.ModeTempFile {
			return fmt.Errorf("ENGINE %q supports only the stream output mode", c.Engine)
		}
	default:
		return fmt.Errorf("unknown ENGINE %q: use %q or %q", c.Engine, EngineYtDlp, EngineYtLib)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT %d is out of range", c.Port)
	}
	if c.DownloadTimeout <= 0 {
		return errors.New("DOWNLOAD_TIMEOUT must be positive")
	}
	if c.KillGrace < 0 {
		return errors.New("KILL_GRACE can't be negative")
	}
	if c.RelayChunkSize <= 0 || c.RelayBuffers <= 0 {
		return errors.New("RELAY_CHUNK_KB and RELAY_BUFFERS must be positive")
	}
	if c.OutputMode == app.ModeTempFile && c.ScratchDir == "" {
		return errors.New("SCRATCH_DIR is required for the tempfile output mode")
	}
	return nil
}

// Addr is the listen address for http.Server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
