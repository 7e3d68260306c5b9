// Package server provides the TCP listener of relayhub with graceful shutdown
// and configurable options.
//
// The server binds one address and accepts connections forever. Each
// connection is registered with the ConnectionHandler on the accept loop, so
// the handler sees connections in accept order, and is then served on its own
// goroutine, so a slow handler never delays the next accept. TCP_NODELAY is
// enabled on every accepted connection.
//
// # Basic Usage
//
//	srv := server.New(":4444",
//		server.WithLogger(log),
//		server.WithShutdownTimeout(10*time.Second),
//	)
//
//	eg, ctx := errgroup.WithContext(ctx)
//	eg.Go(srv.Run(ctx, hub))
//
// # Errors
//
// A bind failure is returned wrapped in ErrBind and should end the process.
// Accept errors are logged and retried with a backoff between
// MinAcceptRetryDelay and MaxAcceptRetryDelay. Only an invalid listening
// socket (EBADF, EINVAL, ENOTSOCK) ends Start with ErrAccept; a closed
// listener ends it cleanly.
//
// # Shutdown
//
// Stop closes the listener first, then calls Shutdown on the handler when it
// implements Shutdowner, and waits for in-flight connections up to the
// shutdown timeout.
package server
