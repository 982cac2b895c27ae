// Package main hosts the sessionctl CLI entrypoint and command graph.
//
// The Cobra-based command tree translates terminal invocations into HTTP
// calls against the sessiond API: daemon status, health checks, session
// history, and staging metadata for the next recording session. Heavy
// lifting lives in the internal packages; this package handles flags,
// rendering, and exit codes.
package main
