// Package config provides application configuration management with support for environment variables, command-line flags, and .env files.
package config

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config holds the application configuration.
type Config struct {
	App        AppConfig
	Logger     LoggerConfig
	Server     ServerConfig
	Data       DataConfig
	Align      AlignConfig
	Recognizer RecognizerConfig
	Audio      AudioConfig
	Inbox      InboxConfig
	RateLimit  RateLimitConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Port         string        // Server port (default: 8080)
	ReadTimeout  time.Duration // HTTP read timeout (default: 15s)
	WriteTimeout time.Duration // HTTP write timeout (default: 0, SSE streams stay open)
	IdleTimeout  time.Duration // HTTP idle timeout (default: 60s)
	CORSOrigins  []string      // Allowed origins (default: *)
}

// DataConfig holds the storage root. Every store lives below BasePath.
type DataConfig struct {
	BasePath string
}

// JobsPath is the badger directory holding jobs and checkpoints.
func (d DataConfig) JobsPath() string { return filepath.Join(d.BasePath, "jobs") }

// TimingsPath is the sqlite file holding timing sets.
func (d DataConfig) TimingsPath() string { return filepath.Join(d.BasePath, "timings.db") }

// SearchPath is the directory of the sentence search index.
func (d DataConfig) SearchPath() string { return filepath.Join(d.BasePath, "search") }

// AlignConfig tunes alignment runs.
type AlignConfig struct {
	// MinSentences is the sentence count below which a chapter is skipped (default: 20).
	MinSentences int
	// WindowLength bounds audio streamed per session without chapter files (default: 3h).
	WindowLength time.Duration
	// SkipBack is how far before the previous chapter's end a window starts (default: 10m).
	SkipBack time.Duration
	// EstimateTolerance and ChainTolerance are the correction pass windows (default: 90s, 45s).
	EstimateTolerance time.Duration
	ChainTolerance    time.Duration
	// ChunkSize is the feeder read size in bytes (default: 1 MiB).
	ChunkSize int
	// BridgeCapacity is the streaming buffer size in bytes (default: 32 MiB).
	BridgeCapacity int
	// PollInterval is how often blocked bridge calls check for cancellation (default: 100ms).
	PollInterval time.Duration
	// CheckpointEvery is the number of chapters between checkpoints, 0 disables (default: 1).
	CheckpointEvery int
}

// RecognizerConfig configures the external speech recognizer.
type RecognizerConfig struct {
	// Enabled turns recognition mode on (default: true when Command is set).
	Enabled bool
	// Command is the recognizer executable.
	Command string
	// Args are passed to Command, split on spaces.
	Args []string
}

// AudioConfig configures decoding.
type AudioConfig struct {
	FFmpegPath  string // default: auto-detect
	FFprobePath string // default: auto-detect
	SampleRate  int    // PCM rate handed to the recognizer (default: 44100)
}

// InboxConfig configures the request inbox.
type InboxConfig struct {
	Enabled bool   // default: true
	Path    string // default: {data}/inbox
}

// RateLimitConfig limits job submissions per client.
type RateLimitConfig struct {
	JobsPerMinute int // default: 10
	Burst         int // default: 5
}

// LoadConfig loads configuration from the process arguments.
func LoadConfig() (*Config, error) {
	return Load(os.Args[1:])
}

// Load loads configuration from multiple sources with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. Default values (lowest priority).
func Load(args []string) (*Config, error) {
	fs := flag.NewFlagSet("listenup-align", flag.ContinueOnError)

	env := fs.String("env", "", "Environment (development, staging, production)")
	logLevel := fs.String("log-level", "", "Log level (debug, info, warn, error)")
	dataPath := fs.String("data-path", "", "Base path for jobs, timings and the search index")
	envFile := fs.String("env-file", ".env", "Path to .env file")

	// Server flags
	serverPort := fs.String("port", "", "Server port (default: 8080)")
	readTimeout := fs.String("read-timeout", "", "HTTP read timeout (default: 15s)")
	writeTimeout := fs.String("write-timeout", "", "HTTP write timeout (default: 0)")
	idleTimeout := fs.String("idle-timeout", "", "HTTP idle timeout (default: 60s)")
	corsOrigins := fs.String("cors-origins", "", "Comma separated allowed origins (default: *)")

	// Align flags
	minSentences := fs.String("min-sentences", "", "Minimum sentences for a chapter to be aligned (default: 20)")
	windowLength := fs.String("window-length", "", "Audio window per recognition session (default: 3h)")
	skipBack := fs.String("skip-back", "", "Window start before the previous chapter's end (default: 10m)")
	checkpointEvery := fs.String("checkpoint-every", "", "Chapters between checkpoints (default: 1)")

	// Recognizer flags
	recognizerCommand := fs.String("recognizer", "", "Speech recognizer executable")
	recognizerArgs := fs.String("recognizer-args", "", "Recognizer arguments")
	recognizerEnabled := fs.String("recognizer-enabled", "", "Enable recognition mode (default: true when a recognizer is set)")

	// Audio flags
	ffmpegPath := fs.String("ffmpeg-path", "", "Path to ffmpeg binary (default: auto-detect)")
	ffprobePath := fs.String("ffprobe-path", "", "Path to ffprobe binary (default: auto-detect)")

	// Inbox flags
	inboxPath := fs.String("inbox-path", "", "Directory watched for *.book.json requests")
	inboxEnabled := fs.String("inbox-enabled", "", "Watch the inbox (default: true)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// Load .env file if it exists (silently ignore if not found).
	_ = loadEnvFile(*envFile)

	command := getConfigValue(*recognizerCommand, "RECOGNIZER_COMMAND", "")

	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(*env, "ENV", "development"),
		},
		Logger: LoggerConfig{
			Level: getConfigValue(*logLevel, "LOG_LEVEL", "info"),
		},
		Server: ServerConfig{
			Port:        getConfigValue(*serverPort, "SERVER_PORT", "8080"),
			CORSOrigins: splitList(getConfigValue(*corsOrigins, "CORS_ORIGINS", "*"), ","),
		},
		Data: DataConfig{
			BasePath: getConfigValue(*dataPath, "DATA_PATH", ""),
		},
		Align: AlignConfig{
			MinSentences:    getIntConfigValue(*minSentences, "ALIGN_MIN_SENTENCES", 20),
			ChunkSize:       getIntConfigValue("", "ALIGN_CHUNK_SIZE", 1<<20),
			BridgeCapacity:  getIntConfigValue("", "ALIGN_BRIDGE_CAPACITY", 32<<20),
			CheckpointEvery: getIntConfigValue(*checkpointEvery, "ALIGN_CHECKPOINT_EVERY", 1),
		},
		Recognizer: RecognizerConfig{
			Enabled: getBoolConfigValue(*recognizerEnabled, "RECOGNIZER_ENABLED", command != ""),
			Command: command,
			Args:    splitList(getConfigValue(*recognizerArgs, "RECOGNIZER_ARGS", ""), " "),
		},
		Audio: AudioConfig{
			FFmpegPath:  getConfigValue(*ffmpegPath, "FFMPEG_PATH", ""),
			FFprobePath: getConfigValue(*ffprobePath, "FFPROBE_PATH", ""),
			SampleRate:  getIntConfigValue("", "AUDIO_SAMPLE_RATE", 44100),
		},
		Inbox: InboxConfig{
			Enabled: getBoolConfigValue(*inboxEnabled, "INBOX_ENABLED", true),
			Path:    getConfigValue(*inboxPath, "INBOX_PATH", ""),
		},
		RateLimit: RateLimitConfig{
			JobsPerMinute: getIntConfigValue("", "RATE_LIMIT_JOBS_PER_MINUTE", 10),
			Burst:         getIntConfigValue("", "RATE_LIMIT_BURST", 5),
		},
	}

	durations := []struct {
		dest       *time.Duration
		flagValue  string
		envKey     string
		defaultVal string
	}{
		{&cfg.Server.ReadTimeout, *readTimeout, "SERVER_READ_TIMEOUT", "15s"},
		{&cfg.Server.WriteTimeout, *writeTimeout, "SERVER_WRITE_TIMEOUT", "0s"},
		{&cfg.Server.IdleTimeout, *idleTimeout, "SERVER_IDLE_TIMEOUT", "60s"},
		{&cfg.Align.WindowLength, *windowLength, "ALIGN_WINDOW_LENGTH", "3h"},
		{&cfg.Align.SkipBack, *skipBack, "ALIGN_SKIP_BACK", "10m"},
		{&cfg.Align.EstimateTolerance, "", "ALIGN_ESTIMATE_TOLERANCE", "90s"},
		{&cfg.Align.ChainTolerance, "", "ALIGN_CHAIN_TOLERANCE", "45s"},
		{&cfg.Align.PollInterval, "", "ALIGN_POLL_INTERVAL", "100ms"},
	}
	for _, d := range durations {
		v, err := getDurationConfigValue(d.flagValue, d.envKey, d.defaultVal)
		if err != nil {
			return nil, err
		}
		*d.dest = v
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required config values are present and valid.
func (c *Config) Validate() error {
	if c.App.Environment == "" {
		return errors.New("ENV is required")
	}

	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
	}
	if !validEnvs[c.App.Environment] {
		return fmt.Errorf("invalid environment: %s (must be development, staging, or production)", c.App.Environment)
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[strings.ToLower(c.Logger.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	if c.Data.BasePath == "" {
		return errors.New("data base path cannot be empty after expansion")
	}

	if c.Align.MinSentences < 1 {
		return fmt.Errorf("min sentences must be at least 1, got %d", c.Align.MinSentences)
	}
	positive := map[string]time.Duration{
		"window length":      c.Align.WindowLength,
		"skip back":          c.Align.SkipBack,
		"estimate tolerance": c.Align.EstimateTolerance,
		"chain tolerance":    c.Align.ChainTolerance,
		"poll interval":      c.Align.PollInterval,
	}
	for name, d := range positive {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	if c.Align.SkipBack >= c.Align.WindowLength {
		return fmt.Errorf("skip back (%s) must be shorter than the window length (%s)", c.Align.SkipBack, c.Align.WindowLength)
	}
	if c.Align.ChunkSize <= 0 || c.Align.BridgeCapacity < c.Align.ChunkSize {
		return fmt.Errorf("bridge capacity (%d) must hold at least one chunk (%d)", c.Align.BridgeCapacity, c.Align.ChunkSize)
	}
	if c.Align.CheckpointEvery < 0 {
		return errors.New("checkpoint interval cannot be negative")
	}

	if c.Recognizer.Enabled && c.Recognizer.Command == "" {
		return errors.New("recognizer is enabled but no recognizer command is set")
	}
	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate %d", c.Audio.SampleRate)
	}
	if c.RateLimit.JobsPerMinute <= 0 || c.RateLimit.Burst <= 0 {
		return errors.New("rate limit jobs per minute and burst must be positive")
	}

	return nil
}

// expandPath expands ~ and makes the path absolute.
// If path is empty and defaultPath is provided, uses the default.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	// Expand tilde.
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	// Make absolute if needed.
	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

// expandPaths resolves the data path (default ~/ListenUp/align) and the inbox
// path (default {data}/inbox).
func (c *Config) expandPaths() error {
	defaultData := ""
	if c.Data.BasePath == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		defaultData = filepath.Join(homeDir, "ListenUp", "align")
	}

	expanded, err := expandPath(c.Data.BasePath, defaultData)
	if err != nil {
		return fmt.Errorf("invalid data path: %w", err)
	}
	c.Data.BasePath = expanded

	inbox, err := expandPath(c.Inbox.Path, filepath.Join(c.Data.BasePath, "inbox"))
	if err != nil {
		return fmt.Errorf("invalid inbox path: %w", err)
	}
	c.Inbox.Path = inbox
	return nil
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}
	return defaultValue
}

// getBoolConfigValue returns a bool from flag, env var, or default.
// Accepts: "true", "1", "yes" (case-insensitive) as true; anything else is false.
func getBoolConfigValue(flagValue, envKey string, defaultValue bool) bool {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	strValue = strings.ToLower(strValue)
	return strValue == "true" || strValue == "1" || strValue == "yes"
}

// getIntConfigValue returns an int from flag, env var, or default.
func getIntConfigValue(flagValue, envKey string, defaultValue int) int {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	var result int
	if _, err := fmt.Sscanf(strValue, "%d", &result); err != nil {
		return defaultValue
	}
	return result
}

// getDurationConfigValue parses a duration from flag, env var, or default.
func getDurationConfigValue(flagValue, envKey, defaultValue string) (time.Duration, error) {
	strValue := getConfigValue(flagValue, envKey, defaultValue)
	d, err := time.ParseDuration(strValue)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", envKey, strValue, err)
	}
	return d, nil
}

// splitList splits s on sep, dropping empty items.
func splitList(s, sep string) []string {
	var out []string
	for item := range strings.SplitSeq(s, sep) {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// loadEnvFile loads environment variables from a .env file.
// Format: KEY=value (one per line, # for comments).
func loadEnvFile(path string) error {
	file, err := os.Open(path) //#nosec G304 -- Config file path from user input is expected
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return fmt.Errorf("invalid format at line %d: %s", lineNum, line)
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)

		// Env vars take precedence over the .env file.
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("failed to set env var %s: %w", key, err)
			}
		}
	}

	return scanner.Err()
}
