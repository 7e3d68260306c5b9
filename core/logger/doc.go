// Package logger provides a small slog factory and attribute helpers shared by
// every relayhub component.
//
// Components never create their own handlers: they accept a *slog.Logger through
// a functional option and default to a discarding logger. The binary builds the
// real one with New:
//
//	log := logger.New(
//		logger.WithEnvironment(cfg.Env, "relayhub"),
//		logger.WithLevelString(cfg.LogLevel),
//	)
//
//	log.Info("peer connected",
//		logger.Component("relay"),
//		logger.PeerID(7),
//		logger.RemoteAddr(conn.RemoteAddr()),
//	)
//
// Helpers return an empty slog.Attr for nil input, so logger.Error(err) is safe
// to pass unconditionally.
package logger
