package protocol

import "time"

// Heartbeat is published on calremind.heartbeat.<name> every 30s.
type Heartbeat struct {
	Name            string    `json:"name"`
	Status          string    `json:"status"`
	LastEvent       time.Time `json:"last_event"`
	EventsPublished int64     `json:"events_published"`
	Errors          int64     `json:"errors"`
}
