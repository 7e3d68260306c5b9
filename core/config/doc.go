// Package config loads typed configuration from environment variables.
//
// A .env file in the working directory is read once on first use (godotenv),
// then struct fields are filled from their env tags (caarlos0/env). Each
// configuration type is parsed once and cached for the process lifetime.
//
//	type Config struct {
//		Addr           string `env:"RELAY_ADDR" envDefault:":4444"`
//		MailboxCapacity int   `env:"RELAY_MAILBOX_CAPACITY" envDefault:"1024"`
//	}
//
//	var cfg Config
//	config.MustLoad(&cfg)
//
// Nested structs are parsed recursively, so component configs such as
// server.Config or relay.Config can be embedded in the application config.
package config
