package main

import (
	"github.com/dmitrymomot/relayhub/core/bridge"
	"github.com/dmitrymomot/relayhub/core/gateway"
	"github.com/dmitrymomot/relayhub/core/relay"
	"github.com/dmitrymomot/relayhub/core/server"
	"github.com/dmitrymomot/relayhub/integration/database/redis"
	"github.com/dmitrymomot/relayhub/pkg/ratelimiter"
)

type Config struct {
	AppName   string `env:"APP_NAME" envDefault:"relayhub"`
	AppEnv    string `env:"APP_ENV" envDefault:"development"`
	LogLevel  string `env:"LOG_LEVEL"`
	LogFormat string `env:"LOG_FORMAT"`

	Server    server.Config
	ConnLimit ratelimiter.Config `envPrefix:"RELAY_CONN_"`
	Relay     relay.Config
	Gateway   gateway.Config
	Bridge    bridge.Config
	Redis     redis.Config
}
