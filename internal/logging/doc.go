// Package logging builds the slog loggers used across sessiond.
//
// It provides console and JSON handlers, standardized attribute helpers, and
// the field-name constants shared by every component so log output stays
// greppable. Components obtain their logger via NewComponentLogger and never
// construct handlers themselves.
package logging
