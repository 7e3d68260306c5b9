package config

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var (
	dotenvOnce sync.Once

	cacheMu sync.Mutex
	cache   = make(map[reflect.Type]any)
)

// Load parses environment variables into cfg. The first call for a given
// type reads the environment, later calls copy the cached value.
// A .env file in the working directory is loaded once, if present.
func Load[T any](cfg *T) error {
	if cfg == nil {
		return ErrNilConfig
	}

	dotenvOnce.Do(func() {
		// Missing .env is the common case in containers.
		_ = godotenv.Load()
	})

	typ := reflect.TypeOf(cfg).Elem()

	cacheMu.Lock()
	defer cacheMu.Unlock()

	if cached, ok := cache[typ]; ok {
		*cfg = cached.(T)
		return nil
	}

	var parsed T
	if err := env.Parse(&parsed); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrParseConfig, typ, err)
	}

	cache[typ] = parsed
	*cfg = parsed
	return nil
}

// MustLoad is like Load but panics on failure. Intended for program startup.
func MustLoad[T any](cfg *T) {
	if err := Load(cfg); err != nil {
		panic(err)
	}
}

// reset drops every cached configuration. Used by tests.
func reset() {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	cache = make(map[reflect.Type]any)
}
