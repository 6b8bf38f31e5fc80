package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "/v0", cfg.Server.BasePath)
	assert.Equal(t, "pt", cfg.Transcription.Language)
	assert.Equal(t, 15, cfg.Commander.DeadlineLimit)
	assert.Equal(t, "America/Sao_Paulo", cfg.Location().String())
}

func TestFromYAMLOverridesDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte(`
llm:
  model: gpt-4.1-mini
digest:
  enabled: true
  schedule: "30 7 * * *"
  timezone: UTC
  recipients:
    - tenant_id: t1
      phone: "5511999990000"
`))
	require.NoError(t, err)
	assert.Equal(t, "gpt-4.1-mini", cfg.LLM.Model)
	assert.Equal(t, "https://api.openai.com/v1", cfg.LLM.BaseURL)
	require.Len(t, cfg.Digest.Recipients, 1)
	assert.Equal(t, "t1", cfg.Digest.Recipients[0].TenantID)
}

func TestValidateRejectsBadDigest(t *testing.T) {
	_, err := FromYAML([]byte(`
digest:
  enabled: true
  schedule: "not a schedule"
`))
	require.Error(t, err)

	_, err = FromYAML([]byte(`
digest:
  enabled: true
  recipients:
    - tenant_id: t1
`))
	require.ErrorContains(t, err, "recipients[0]")
}

func TestValidateRejectsBadTimezone(t *testing.T) {
	_, err := FromYAML([]byte("commander:\n  timezone: Mars/Olympus\n"))
	require.ErrorContains(t, err, "commander.timezone")
}

func TestLoadMissingFileFallsBack(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadReadsWorkspaceFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lexflow.yml"), []byte("server:\n  addr: 0.0.0.0:9000\n"), 0o644))
	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9000", cfg.Server.Addr)
	assert.Equal(t, "/v0", cfg.Server.BasePath)
}
