// Package instrument provides the HTTP client for the acquisition
// instrument's status endpoint.
//
// The daemon only observes the instrument; it never starts or stops the
// instrument's own recording. A Status carries the raw recording indicator
// plus the source-file identifiers the instrument reports for the take in
// progress.
package instrument
