// Package daemon wires the instrument poller, session store, and recording
// controller into the long-running sessiond process, and serves the local
// HTTP API for status and metadata.
//
// The daemon holds a file lock so only one instance runs per machine. Session
// start and end edges from the poller drive the recording controller and the
// session store; video exports run in background goroutines so the polling
// loop never blocks on the recorder.
package daemon
