// Package poller converts noisy periodic reads of the instrument status
// endpoint into session start/end edges.
//
// Edge detection is fail-safe: a failed poll never changes the remembered
// indicator, so a transient outage can never be mistaken for a transition,
// and the very first successful observation only establishes a baseline.
// Handlers run synchronously inside Poll, in poll order.
package poller
