package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// parseEnv overlays Config fields from environment variables. A .env file in
// the working directory is loaded first when present; real environment
// variables win over it.
func parseEnv(config *Config) {
	_ = godotenv.Load()

	setString(&config.Addr, "WORDLEDGER_ADDR")
	setString(&config.Backend, "WORDLEDGER_BACKEND")
	setString(&config.DataDir, "WORDLEDGER_DATA_DIR")
	setString(&config.SQLitePath, "WORDLEDGER_SQLITE_PATH")
	setString(&config.DatabaseDSN, "WORDLEDGER_DATABASE_DSN")
	setString(&config.SheetsEndpoint, "WORDLEDGER_SHEETS_ENDPOINT")
	setString(&config.SheetsToken, "WORDLEDGER_SHEETS_TOKEN")
	setString(&config.SecretKey, "WORDLEDGER_SECRET_KEY")
	setString(&config.PasswordScheme, "WORDLEDGER_PASSWORD_SCHEME")
	setString(&config.RewriteBaseURL, "WORDLEDGER_REWRITE_BASE_URL")
	setString(&config.RewriteAPIKey, "WORDLEDGER_REWRITE_API_KEY")
	setString(&config.RewriteModel, "WORDLEDGER_REWRITE_MODEL")
	setString(&config.RewriteSystemPrompt, "WORDLEDGER_REWRITE_SYSTEM_PROMPT")

	if v, ok := os.LookupEnv("WORDLEDGER_REGISTRATION_BONUS"); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			config.RegistrationBonus = n
		}
	}
	if v, ok := os.LookupEnv("WORDLEDGER_TOKEN_VALIDITY"); ok {
		if d, err := time.ParseDuration(v); err == nil {
			config.TokenValidity = d
		}
	}
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}
