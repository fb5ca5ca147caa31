// Package shutdown coordinates graceful shutdown of the relay.
//
// Handlers register with a phase; lower phases run first and handlers that
// share a phase run concurrently. SIGTERM or SIGINT starts the sequence.
//
//	coord := shutdown.NewCoordinator(shutdown.DefaultConfig())
//	coord.HandleSignals()
//
//	coord.RegisterFunc("http", shutdown.PhaseServer, srv.Shutdown)
//	coord.RegisterFunc("gate", shutdown.PhaseGate, func(ctx context.Context) error {
//	    gate.Close()
//	    return gate.Drain(ctx)
//	})
//	coord.RegisterFunc("telemetry", shutdown.PhaseFlush, provider.Shutdown)
//
//	<-coord.Done()
//
// The server stops taking requests first, then queued generations are turned
// away and in-flight ones drain, then spans are flushed.
package shutdown
