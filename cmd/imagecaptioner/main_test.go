package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appcfg "github.com/jo-hoe/imagecaptioner/internal/config"
	"github.com/jo-hoe/imagecaptioner/internal/jobs"
	"github.com/jo-hoe/imagecaptioner/internal/llm/aiproxy"
	"github.com/jo-hoe/imagecaptioner/internal/llm/gemini"
	"github.com/jo-hoe/imagecaptioner/internal/llm/mock"
)

func TestVersionCommand(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, version+"\n", out.String())
}

func TestNewLLMClient(t *testing.T) {
	cfg := &appcfg.Config{}
	cfg.LLM.Gemini.Model = "gemini-2.5-flash"
	cfg.LLM.AIProxy.Model = "gpt-4o-mini"

	cfg.LLM.Provider = appcfg.ProviderGemini
	c, model, err := newLLMClient(cfg)
	require.NoError(t, err)
	assert.IsType(t, &gemini.Client{}, c)
	assert.Equal(t, "gemini-2.5-flash", model)

	cfg.LLM.Provider = appcfg.ProviderAIProxy
	c, model, err = newLLMClient(cfg)
	require.NoError(t, err)
	assert.IsType(t, &aiproxy.Client{}, c)
	assert.Equal(t, "gpt-4o-mini", model)

	cfg.LLM.Provider = appcfg.ProviderMock
	c, _, err = newLLMClient(cfg)
	require.NoError(t, err)
	assert.IsType(t, &mock.Client{}, c)

	cfg.LLM.Provider = "other"
	_, _, err = newLLMClient(cfg)
	assert.Error(t, err)
}

func TestOpenStore(t *testing.T) {
	cfg := &appcfg.Config{}
	store, err := openStore(cfg)
	require.NoError(t, err)
	assert.IsType(t, jobs.NopStore{}, store)

	cfg.Server.RequestLogPath = filepath.Join(t.TempDir(), "requests.db")
	store, err = openStore(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	assert.IsType(t, &jobs.SQLiteStore{}, store)
}
