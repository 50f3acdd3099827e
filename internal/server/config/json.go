package config

import (
	"encoding/json"
	"os"
	"time"

	"wordledger/internal/flagx"
	"wordledger/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON
// unmarshalling. It uses timex.Duration for interval fields, which allows
// parsing both string values such as "24h" and integer nanoseconds.
//
// This struct is an intermediate DTO used only for reading JSON configuration
// files. After unmarshalling, the fields that were actually present are
// copied into the runtime Config struct.
type JsonConfig struct {
	Addr                *string         `json:"addr"`
	Backend             *string         `json:"backend"`
	DataDir             *string         `json:"data_dir"`
	SQLitePath          *string         `json:"sqlite_path"`
	DatabaseDSN         *string         `json:"database_dsn"`
	SheetsEndpoint      *string         `json:"sheets_endpoint"`
	SheetsToken         *string         `json:"sheets_token"`
	SecretKey           *string         `json:"secret_key"`
	TokenValidity       *timex.Duration `json:"token_validity"`
	RegistrationBonus   *int64          `json:"registration_bonus"`
	PasswordScheme      *string         `json:"password_scheme"`
	RewriteBaseURL      *string         `json:"rewrite_base_url"`
	RewriteAPIKey       *string         `json:"rewrite_api_key"`
	RewriteModel        *string         `json:"rewrite_model"`
	RewriteSystemPrompt *string         `json:"rewrite_system_prompt"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance. The file path comes from the -c or -config command-line
// flags; when neither is set, no JSON file is loaded. Absent JSON keys leave
// the corresponding Config fields untouched. An unreadable or invalid file
// panics, since running with a half-applied config is worse than not starting.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	applyString := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	applyString(&config.Addr, c.Addr)
	applyString(&config.Backend, c.Backend)
	applyString(&config.DataDir, c.DataDir)
	applyString(&config.SQLitePath, c.SQLitePath)
	applyString(&config.DatabaseDSN, c.DatabaseDSN)
	applyString(&config.SheetsEndpoint, c.SheetsEndpoint)
	applyString(&config.SheetsToken, c.SheetsToken)
	applyString(&config.SecretKey, c.SecretKey)
	applyString(&config.PasswordScheme, c.PasswordScheme)
	applyString(&config.RewriteBaseURL, c.RewriteBaseURL)
	applyString(&config.RewriteAPIKey, c.RewriteAPIKey)
	applyString(&config.RewriteModel, c.RewriteModel)
	applyString(&config.RewriteSystemPrompt, c.RewriteSystemPrompt)

	if c.TokenValidity != nil {
		config.TokenValidity = time.Duration(c.TokenValidity.Duration)
	}
	if c.RegistrationBonus != nil {
		config.RegistrationBonus = *c.RegistrationBonus
	}
}
