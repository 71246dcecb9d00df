package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		App:    AppConfig{Environment: "development"},
		Logger: LoggerConfig{Level: "info"},
		Data:   DataConfig{BasePath: "/data"},
		Align: AlignConfig{
			MinSentences:      20,
			WindowLength:      3 * time.Hour,
			SkipBack:          10 * time.Minute,
			EstimateTolerance: 90 * time.Second,
			ChainTolerance:    45 * time.Second,
			ChunkSize:         1 << 20,
			BridgeCapacity:    32 << 20,
			PollInterval:      100 * time.Millisecond,
			CheckpointEvery:   1,
		},
		Audio:     AudioConfig{SampleRate: 44100},
		RateLimit: RateLimitConfig{JobsPerMinute: 10, Burst: 5},
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidate_AllEnvironments(t *testing.T) {
	tests := []struct {
		env   string
		valid bool
	}{
		{"development", true},
		{"staging", true},
		{"production", true},
		{"test", false},
		{"", false},
		{"DEVELOPMENT", false}, // case sensitive
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			cfg := validConfig()
			cfg.App.Environment = tt.env

			err := cfg.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestValidate_AllLogLevels(t *testing.T) {
	tests := []struct {
		level string
		valid bool
	}{
		{"debug", true},
		{"info", true},
		{"warn", true},
		{"error", true},
		{"DEBUG", true}, // case insensitive
		{"trace", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			cfg := validConfig()
			cfg.Logger.Level = tt.level

			err := cfg.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestValidate_AlignSettings(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty data path", func(c *Config) { c.Data.BasePath = "" }},
		{"zero min sentences", func(c *Config) { c.Align.MinSentences = 0 }},
		{"zero window", func(c *Config) { c.Align.WindowLength = 0 }},
		{"negative tolerance", func(c *Config) { c.Align.ChainTolerance = -time.Second }},
		{"skip back longer than window", func(c *Config) { c.Align.SkipBack = 4 * time.Hour }},
		{"bridge smaller than chunk", func(c *Config) { c.Align.BridgeCapacity = 1024 }},
		{"negative checkpoint interval", func(c *Config) { c.Align.CheckpointEvery = -1 }},
		{"recognizer without command", func(c *Config) { c.Recognizer.Enabled = true }},
		{"zero rate limit", func(c *Config) { c.RateLimit.JobsPerMinute = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DATA_PATH", dir)
	t.Setenv("RECOGNIZER_COMMAND", "")

	cfg, err := Load([]string{"-env-file", filepath.Join(dir, "missing.env")})
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.App.Environment)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, time.Duration(0), cfg.Server.WriteTimeout)
	assert.Equal(t, 20, cfg.Align.MinSentences)
	assert.Equal(t, 3*time.Hour, cfg.Align.WindowLength)
	assert.Equal(t, 10*time.Minute, cfg.Align.SkipBack)
	assert.Equal(t, 90*time.Second, cfg.Align.EstimateTolerance)
	assert.Equal(t, 45*time.Second, cfg.Align.ChainTolerance)
	assert.Equal(t, 1, cfg.Align.CheckpointEvery)
	assert.False(t, cfg.Recognizer.Enabled)
	assert.Equal(t, filepath.Join(dir, "inbox"), cfg.Inbox.Path)
	assert.Equal(t, filepath.Join(dir, "timings.db"), cfg.Data.TimingsPath())
	assert.Equal(t, filepath.Join(dir, "jobs"), cfg.Data.JobsPath())
}

func TestLoad_FlagsOverrideEnvironment(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DATA_PATH", dir)
	t.Setenv("SERVER_PORT", "9000")
	t.Setenv("ALIGN_WINDOW_LENGTH", "2h")

	cfg, err := Load([]string{
		"-env-file", filepath.Join(dir, "missing.env"),
		"-port", "9100",
		"-recognizer", "sh",
		"-recognizer-args", "run.sh --rate {sample_rate}",
		"-min-sentences", "5",
	})
	require.NoError(t, err)

	assert.Equal(t, "9100", cfg.Server.Port)
	assert.Equal(t, 2*time.Hour, cfg.Align.WindowLength)
	assert.Equal(t, 5, cfg.Align.MinSentences)
	assert.True(t, cfg.Recognizer.Enabled, "a recognizer command enables recognition")
	assert.Equal(t, []string{"run.sh", "--rate", "{sample_rate}"}, cfg.Recognizer.Args)
}

func TestLoad_InvalidDuration(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DATA_PATH", dir)

	_, err := Load([]string{"-env-file", filepath.Join(dir, "missing.env"), "-skip-back", "soon"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ALIGN_SKIP_BACK")
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	wd, err := os.Getwd()
	require.NoError(t, err)

	tests := []struct {
		name, in, def, want string
	}{
		{"empty uses default", "", "/default", "/default"},
		{"tilde", "~/align", "", filepath.Join(home, "align")},
		{"absolute", "/var/lib/align/", "", "/var/lib/align"},
		{"relative", "data", "", filepath.Join(wd, "data")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := expandPath(tt.in, tt.def)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGetConfigValue_Precedence(t *testing.T) {
	t.Setenv("TEST_ENV_KEY", "env-value")

	assert.Equal(t, "flag-value", getConfigValue("flag-value", "TEST_ENV_KEY", "default"))
	assert.Equal(t, "env-value", getConfigValue("", "TEST_ENV_KEY", "default"))
	assert.Equal(t, "default", getConfigValue("", "TEST_UNSET_KEY", "default"))
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	content := `# comment
TEST_ALIGN_A=value1

TEST_ALIGN_B = "quoted value"
TEST_ALIGN_KEEP=from-file
`
	require.NoError(t, os.WriteFile(envFile, []byte(content), 0o600))
	t.Setenv("TEST_ALIGN_A", "")
	t.Setenv("TEST_ALIGN_B", "")
	t.Setenv("TEST_ALIGN_KEEP", "original")

	require.NoError(t, loadEnvFile(envFile))

	assert.Equal(t, "value1", os.Getenv("TEST_ALIGN_A"))
	assert.Equal(t, "quoted value", os.Getenv("TEST_ALIGN_B"))
	assert.Equal(t, "original", os.Getenv("TEST_ALIGN_KEEP"), "env vars win over the file")
}

func TestLoadEnvFile_InvalidFormat(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("NO_EQUALS_SIGN\n"), 0o600))

	err := loadEnvFile(envFile)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 1")
}

func TestLoadEnvFile_NonExistentFile(t *testing.T) {
	assert.Error(t, loadEnvFile("/nonexistent/.env"))
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitList(" a, ,b ", ","))
	assert.Nil(t, splitList("", " "))
}
