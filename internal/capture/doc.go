// Package capture drives the video recorder. Recording toggles travel over
// MQTT (the recorder subscribes to per-camera command topics); clip exports
// go through the recorder's HTTP API.
//
// The recorder must have recording enabled in its own configuration for the
// MQTT toggle to take effect; a command published to a misconfigured recorder
// is acknowledged by the broker but ignored downstream.
package capture
