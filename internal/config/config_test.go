package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.toml"))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "shout-chat", cfg.App.Name)
	assert.Equal(t, "0.0.0.0:8080", cfg.HTTPAddr())
	assert.Equal(t, "ollama", cfg.LLM.Provider)
	assert.Equal(t, 500, cfg.Limits.MaxContentLength)
	assert.Equal(t, "chat.turn.events", cfg.RabbitMQ.TurnEventQueue)
}

func TestLoad_FileThenEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[app]
port = 9000

[llm]
provider = "openai"
model = "gpt-x"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("LLM_MODEL", "gpt-y")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.App.Port, "file overrides default")
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "gpt-y", cfg.LLM.Model, "env overrides file")
}

func TestMySQLDSN(t *testing.T) {
	cfg := defaultConfig()
	cfg.MySQL.User = "chat"
	cfg.MySQL.Password = "secret"
	cfg.MySQL.Host = "db"
	cfg.MySQL.Port = 3307
	cfg.MySQL.DB = "shout_chat"
	cfg.MySQL.Params = "parseTime=true"

	assert.Equal(t, "chat:secret@tcp(db:3307)/shout_chat?parseTime=true", cfg.MySQLDSN())
}
