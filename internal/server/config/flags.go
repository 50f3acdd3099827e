package config

import (
	"flag"
	"os"
	"time"

	"wordledger/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-b string   store backend: memory, file, sqlite, postgres, sheets
//	-f string   data directory for the file backend
//	-q string   database file for the sqlite backend
//	-d string   PostgreSQL DSN
//	-e string   worksheet API endpoint for the sheets backend
//	-s string   JWT HMAC secret key
//	-t int      token validity, hours
//	-n int      registration bonus, words
//	-p string   password scheme: plain or bcrypt
//
// Notes:
//   - The function first filters os.Args to only the flags it recognizes using
//     flagx.FilterArgs, avoiding collisions with other components.
//   - The token validity flag is accepted as an integer in hours and then
//     converted to a time.Duration value.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-b", "-f", "-q", "-d", "-e", "-s", "-t", "-n", "-p"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.Addr, "a", config.Addr, "address and port to run server")
	fs.StringVar(&config.Backend, "b", config.Backend, "store backend")
	fs.StringVar(&config.DataDir, "f", config.DataDir, "data directory (file backend)")
	fs.StringVar(&config.SQLitePath, "q", config.SQLitePath, "database file (sqlite backend)")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN (postgres backend)")
	fs.StringVar(&config.SheetsEndpoint, "e", config.SheetsEndpoint, "worksheet API endpoint (sheets backend)")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	tokenValidity := fs.Int("t", int(config.TokenValidity.Hours()), "token validity (in hours)")
	fs.Int64Var(&config.RegistrationBonus, "n", config.RegistrationBonus, "registration bonus (in words)")
	fs.StringVar(&config.PasswordScheme, "p", config.PasswordScheme, "password scheme (plain or bcrypt)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.TokenValidity = time.Duration(*tokenValidity) * time.Hour
}
