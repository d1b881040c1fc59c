// Package remoteconfig provides the runtime-tunable notification settings
// fetched from a remote JSON document.
package remoteconfig

import "errors"

// ErrFetchFailed is returned when the remote document cannot be loaded.
var ErrFetchFailed = errors.New("remote config fetch failed")

// DefaultURL is the location of the remote config document.
const DefaultURL = "https://www.octoapp.eu/config/plugin.json"

// DefaultRelayURL is the push relay used when the document names none.
const DefaultRelayURL = "https://europe-west1-octoapp-4e438.cloudfunctions.net/sendNotificationV2"

// Config holds the tunables consumed by the notification engine.
type Config struct {
	UpdatePercentModulus    int    `json:"updatePercentModulus"`
	HighPrecisionRangeStart int    `json:"highPrecisionRangeStart"`
	HighPrecisionRangeEnd   int    `json:"highPrecisionRangeEnd"`
	MinIntervalSecs         int    `json:"minIntervalSecs"`
	SendNotificationURL     string `json:"sendNotificationUrl"`
	MinAppBuild             int    `json:"minAppBuild,omitempty"`
}

// DefaultConfig returns the hard-coded fallback configuration.
func DefaultConfig() Config {
	return Config{
		UpdatePercentModulus:    5,
		HighPrecisionRangeStart: 5,
		HighPrecisionRangeEnd:   5,
		MinIntervalSecs:         300,
		SendNotificationURL:     DefaultRelayURL,
	}
}

// normalize replaces unusable values with defaults. A zero modulus would
// otherwise divide by zero in the throttle.
func (c Config) normalize() Config {
	d := DefaultConfig()
	if c.UpdatePercentModulus <= 0 {
		c.UpdatePercentModulus = d.UpdatePercentModulus
	}
	if c.HighPrecisionRangeStart < 0 {
		c.HighPrecisionRangeStart = d.HighPrecisionRangeStart
	}
	if c.HighPrecisionRangeEnd < 0 {
		c.HighPrecisionRangeEnd = d.HighPrecisionRangeEnd
	}
	if c.MinIntervalSecs <= 0 {
		c.MinIntervalSecs = d.MinIntervalSecs
	}
	if c.SendNotificationURL == "" {
		c.SendNotificationURL = d.SendNotificationURL
	}
	if c.MinAppBuild < 0 {
		c.MinAppBuild = 0
	}
	return c
}
