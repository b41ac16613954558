package checks

import (
	"context"
	"fmt"

	"github.com/charlesng35/labmgr/internal/monitoring"
)

const defaultQueueThreshold = 0.9

// QueueInspector reports how many notification jobs wait for a worker.
type QueueInspector interface {
	Backlog() (pending, capacity int)
}

// NotificationQueue degrades once the email backlog reaches threshold of capacity.
// A full queue means new notifications are being dropped and reports down.
func NotificationQueue(q QueueInspector, threshold float64) monitoring.Check {
	if threshold <= 0 || threshold > 1 {
		threshold = defaultQueueThreshold
	}

	return monitoring.NewCheck("notifications", func(context.Context) monitoring.ProbeResult {
		if q == nil {
			return monitoring.ProbeResult{Status: monitoring.StatusDown, Details: "dispatcher not configured"}
		}

		pending, capacity := q.Backlog()
		details := fmt.Sprintf("%d/%d queued", pending, capacity)
		switch {
		case capacity > 0 && pending >= capacity:
			return monitoring.ProbeResult{Status: monitoring.StatusDown, Details: details}
		case capacity > 0 && float64(pending) >= threshold*float64(capacity):
			return monitoring.ProbeResult{Status: monitoring.StatusDegraded, Details: details}
		default:
			return monitoring.ProbeResult{Status: monitoring.StatusUp, Details: details}
		}
	})
}
