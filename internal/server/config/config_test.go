package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, c.Addr, ":8080")
	assert.Equal(t, c.Backend, "file")
	assert.Equal(t, c.DataDir, "./data")
	assert.Equal(t, c.SQLitePath, "wordledger.db")
	assert.Equal(t, c.SecretKey, "secretKey")
	assert.Equal(t, c.TokenValidity, 24*time.Hour)
	assert.Equal(t, c.RegistrationBonus, int64(200))
	assert.Equal(t, c.PasswordScheme, SchemePlain)
	assert.Equal(t, c.RewriteBaseURL, "https://api.deepseek.com")
	assert.Equal(t, c.RewriteModel, "deepseek-chat")
	assert.NotEmpty(t, c.RewriteSystemPrompt)
}

func TestParseEnv_Overlays(t *testing.T) {
	t.Setenv("WORDLEDGER_BACKEND", "sqlite")
	t.Setenv("WORDLEDGER_SQLITE_PATH", "/tmp/ledger.db")
	t.Setenv("WORDLEDGER_REGISTRATION_BONUS", "500")
	t.Setenv("WORDLEDGER_TOKEN_VALIDITY", "2h")
	t.Setenv("WORDLEDGER_PASSWORD_SCHEME", SchemeBcrypt)

	var c Config
	c.LoadDefaults()
	parseEnv(&c)

	assert.Equal(t, c.Backend, "sqlite")
	assert.Equal(t, c.SQLitePath, "/tmp/ledger.db")
	assert.Equal(t, c.RegistrationBonus, int64(500))
	assert.Equal(t, c.TokenValidity, 2*time.Hour)
	assert.Equal(t, c.PasswordScheme, SchemeBcrypt)
	// Untouched fields keep their defaults.
	assert.Equal(t, c.Addr, ":8080")
}

func TestParseEnv_IgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("WORDLEDGER_REGISTRATION_BONUS", "lots")
	t.Setenv("WORDLEDGER_TOKEN_VALIDITY", "soon")

	var c Config
	c.LoadDefaults()
	parseEnv(&c)

	assert.Equal(t, c.RegistrationBonus, int64(200))
	assert.Equal(t, c.TokenValidity, 24*time.Hour)
}

func TestParseJson_Overlays(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data := `{
		"addr": ":9090",
		"backend": "postgres",
		"database_dsn": "postgres://u:p@localhost:5432/ledger",
		"token_validity": "30m",
		"registration_bonus": 1000
	}`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })
	os.Args = []string{"server", "-c", path}

	var c Config
	c.LoadDefaults()
	parseJson(&c)

	assert.Equal(t, c.Addr, ":9090")
	assert.Equal(t, c.Backend, "postgres")
	assert.Equal(t, c.DatabaseDSN, "postgres://u:p@localhost:5432/ledger")
	assert.Equal(t, c.TokenValidity, 30*time.Minute)
	assert.Equal(t, c.RegistrationBonus, int64(1000))
	// Keys absent from the file stay at their defaults.
	assert.Equal(t, c.SecretKey, "secretKey")
	assert.Equal(t, c.PasswordScheme, SchemePlain)
}

func TestParseFlags_Overlays(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })
	os.Args = []string{"server", "-a", ":7070", "-b", "memory", "-t", "48", "-n", "300", "-p", SchemeBcrypt}

	var c Config
	c.LoadDefaults()
	parseFlags(&c)

	assert.Equal(t, c.Addr, ":7070")
	assert.Equal(t, c.Backend, "memory")
	assert.Equal(t, c.TokenValidity, 48*time.Hour)
	assert.Equal(t, c.RegistrationBonus, int64(300))
	assert.Equal(t, c.PasswordScheme, SchemeBcrypt)
}
