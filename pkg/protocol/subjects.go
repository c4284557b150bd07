package protocol

import "fmt"

// NATS subjects.
const (
	SubjectReminders = "calremind.events.reminders"
)

func SubjectHeartbeat(name string) string {
	return fmt.Sprintf("calremind.heartbeat.%s", name)
}
