// Package session owns recording-session lifecycle state: the pending
// metadata staged for the next session, the single active session, and the
// append-only history of finished ones.
//
// Every finished session is persisted as a JSON sidecar named after the
// derived video filename, written atomically. The in-memory history is the
// source of truth for the running process; sidecar write failures are logged
// and never raised.
package session
