package reminder

import "time"

// LedgerRetention is how long a ledger entry survives once its event has
// left the reminder window.
const LedgerRetention = 24 * time.Hour

// Ledger maps a notification key to the epoch milliseconds at which the
// reminder was first shown.
type Ledger map[string]int64

// Evaluate returns the events that should be notified now and the ledger
// that replaces prev. It is pure; callers present the notifications and
// persist the returned ledger as-is.
//
// An event is due when 0 < start-now <= lead. A due event whose key is
// already in prev keeps its original timestamp and is not notified again.
// Entries of prev younger than LedgerRetention are carried over; older
// ones are dropped.
func Evaluate(events []CalendarEvent, lead time.Duration, prev Ledger, now time.Time) ([]Notification, Ledger) {
	nowMs := now.UnixMilli()
	next := make(Ledger, len(prev))
	var due []Notification

	for _, ev := range events {
		if !ev.Timed() {
			continue
		}
		until := ev.Start.Sub(now)
		if until <= 0 || until > lead {
			continue
		}

		key := ev.Key()
		if _, seen := next[key]; seen {
			continue
		}
		if ts, ok := prev[key]; ok {
			next[key] = ts
			continue
		}
		next[key] = nowMs
		due = append(due, NotificationFor(ev))
	}

	cutoff := now.Add(-LedgerRetention).UnixMilli()
	for key, ts := range prev {
		if _, ok := next[key]; ok {
			continue
		}
		if ts > cutoff {
			next[key] = ts
		}
	}

	return due, next
}
