package models

// EventRequest is the body of POST /v1/events.
type EventRequest struct {
	Kind         string `json:"kind"`
	FileName     string `json:"fileName,omitempty"`
	Progress     int    `json:"progress,omitempty"`
	TimeLeftSec  int    `json:"timeLeftSec,omitempty"`
	PrintTimeSec int    `json:"printTimeSec,omitempty"`
	Error        string `json:"error,omitempty"`
}

// EventAccepted acknowledges an event handed to the notification engine.
type EventAccepted struct {
	Kind    string  `json:"kind"`
	PrintID *string `json:"printId,omitempty"`
}
