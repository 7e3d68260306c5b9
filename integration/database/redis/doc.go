// Package redis creates go-redis clients with connection verification and
// exposes a readiness probe for them.
//
// The relay hub uses Redis as the bus for its bridge: several hub processes
// publish to and subscribe from one channel so that peers connected to
// different processes see each other's messages.
//
//   - Connect: parses a redis:// or rediss:// URL, pings with retries and
//     returns a ready client
//   - Healthcheck: returns a func(context.Context) error suitable for /ready
//
// # Configuration
//
//	type Config struct {
//		ConnectionURL  string        `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
//		RetryAttempts  int           `env:"REDIS_RETRY_ATTEMPTS" envDefault:"3"`
//		RetryInterval  time.Duration `env:"REDIS_RETRY_INTERVAL" envDefault:"5s"`
//		ConnectTimeout time.Duration `env:"REDIS_CONNECT_TIMEOUT" envDefault:"30s"`
//	}
//
// The wait between attempts starts at RetryInterval and doubles after each
// failed ping. ConnectTimeout bounds the whole procedure.
//
// # Usage
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	ready := redis.Healthcheck(client)
//
// # Errors
//
//   - ErrEmptyConnectionURL: no URL configured
//   - ErrFailedToParseRedisConnString: the URL is malformed or has a foreign scheme
//   - ErrRedisNotReady: no successful ping within the retry budget
//   - ErrHealthcheckFailed: a probe ping failed
package redis
