package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseByteSize_HumanAndK8sUnits(t *testing.T) {
	cases := []struct {
		in   string
		want uint64
	}{
		{"1024", 1024},
		{"1Ki", 1024},
		{"1KiB", 1024},
		{"2Mi", 2 * 1024 * 1024},
		{"2MiB", 2 * 1024 * 1024},
		{"10kb", 10 * 1000},
		{"10mb", 10 * 1000 * 1000},
		{"10 MB", 10 * 1000 * 1000},
		{"2GB", 2 * 1000 * 1000 * 1000},
	}
	for _, c := range cases {
		got, err := ParseByteSize(c.in)
		require.NoError(t, err, "ParseByteSize(%q)", c.in)
		assert.Equal(t, c.want, got, "ParseByteSize(%q)", c.in)
	}

	_, err := ParseByteSize("bad")
	assert.Error(t, err)
	_, err = ParseByteSize("  ")
	assert.Error(t, err)
}

func TestParseLogLevel(t *testing.T) {
	lvl, err := ParseLogLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, lvl)

	lvl, err = ParseLogLevel("WARN")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, lvl)

	_, err = ParseLogLevel("loud")
	assert.Error(t, err)
}

func TestLoad_FromEnvironmentOnly(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	clearEnv(t)
	t.Setenv(EnvOrigin, "http://localhost:5173")
	t.Setenv(EnvBodyLimit, "5mb")
	t.Setenv(EnvPort, "4000")
	t.Setenv(EnvGeminiAPIKey, "gem-key")
	t.Setenv(EnvGoogleAPIKey, "google-key")
	t.Setenv(EnvStorageDir, filepath.Join(dir, "scratch"))

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":4000", cfg.Server.Addr)
	assert.Equal(t, "http://localhost:5173", cfg.Server.AllowedOrigin)
	assert.Equal(t, ByteSize(5*1000*1000), cfg.Server.BodyLimit)
	assert.Equal(t, ProviderGemini, cfg.LLM.Provider)
	assert.Equal(t, "gem-key", cfg.LLM.Gemini.APIKey, "GEMINI_API_KEY should win over GOOGLE_API_KEY")
	assert.Equal(t, "gemini-2.5-flash", cfg.LLM.Gemini.Model)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)

	info, err := os.Stat(cfg.Server.StorageDir)
	require.NoError(t, err, "storage dir should be created")
	assert.True(t, info.IsDir())
}

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	clearEnv(t)
	t.Setenv(EnvLLMProvider, "mock")
	t.Setenv(EnvStorageDir, dir)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":3000", cfg.Server.Addr)
	assert.Equal(t, ByteSize(10*1000*1000), cfg.Server.BodyLimit)
	assert.Equal(t, "10 MB", cfg.Server.BodyLimit.String())
	assert.Equal(t, "info", cfg.Server.LogLevel)
	assert.Positive(t, cfg.Server.CleanupWorkers)
	assert.Positive(t, cfg.Server.CleanupQueueSize)
	assert.Empty(t, cfg.Server.RequestLogPath)
}

func TestLoad_YAMLWithEnvExpansionAndOverrides(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	clearEnv(t)
	t.Setenv("CAPTION_KEY", "secret123")
	t.Setenv(EnvPort, "9090")

	yaml := `
server:
  address: ":0"
  allowedOrigin: "https://app.example.com"
  readTimeout: 1s
  writeTimeout: 2s
  idleTimeout: 3s
  bodyLimit: 1Mi
  storageDir: "` + escapeBackslashes(dir) + `"
  requestLogPath: "` + escapeBackslashes(filepath.Join(dir, "requests.db")) + `"
  shutdownGrace: 5s
  cleanupWorkers: 3
  logLevel: debug

llm:
  provider: "gemini"
  gemini:
    model: "gemini-2.0-flash"
    apiKey: "${CAPTION_KEY}"
    timeout: 30s
`
	require.NoError(t, os.WriteFile(cfgPath, []byte(yaml), 0o600))

	cfg, err := Load(cfgPath)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr, "PORT should override the file")
	assert.Equal(t, "https://app.example.com", cfg.Server.AllowedOrigin)
	assert.Equal(t, 1*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 2*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, 3*time.Second, cfg.Server.IdleTimeout)
	assert.Equal(t, ByteSize(1024*1024), cfg.Server.BodyLimit)
	assert.Equal(t, 3, cfg.Server.CleanupWorkers)
	assert.True(t, strings.HasSuffix(cfg.Server.RequestLogPath, "requests.db"))
	assert.Equal(t, "secret123", cfg.LLM.Gemini.APIKey)
	assert.Equal(t, "gemini-2.0-flash", cfg.LLM.Gemini.Model)
	assert.Equal(t, 30*time.Second, cfg.LLM.Gemini.Timeout)
}

func TestLoad_ExplicitMissingFileFails(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_Validation(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	clearEnv(t)
	t.Setenv(EnvStorageDir, dir)

	_, err := Load("")
	require.Error(t, err, "gemini without api key must fail")
	assert.Contains(t, err.Error(), "apiKey")

	t.Setenv(EnvLLMProvider, "carrier-pigeon")
	_, err = Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported llm provider")

	t.Setenv(EnvLLMProvider, "mock")
	t.Setenv(EnvBodyLimit, "lots")
	_, err = Load("")
	assert.Error(t, err)
}

// clearEnv blanks every variable Load consults so the host environment cannot leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		EnvConfigPath, EnvOrigin, EnvBodyLimit, EnvPort, EnvGeminiAPIKey, EnvGoogleAPIKey,
		EnvGeminiModel, EnvLLMProvider, EnvLogLevel, EnvStorageDir,
	} {
		t.Setenv(k, "")
	}
}

func escapeBackslashes(p string) string {
	// On Windows, YAML literal may require escaping backslashes
	return strings.ReplaceAll(p, `\`, `\\`)
}

func TestLoad_RejectsBadOrigin(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	clearEnv(t)
	t.Setenv(EnvLLMProvider, "mock")
	t.Setenv(EnvStorageDir, dir)
	t.Setenv(EnvOrigin, "localhost:5173")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "allowedOrigin")

	t.Setenv(EnvOrigin, "*")
	_, err = Load("")
	assert.NoError(t, err)
}

// chdir changes the working directory for the duration of the test and
// restores it on cleanup (equivalent of testing.T.Chdir for older toolchains).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { require.NoError(t, os.Chdir(prev)) })
}
