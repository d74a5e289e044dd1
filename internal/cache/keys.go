package cache

import (
	"fmt"

	"github.com/google/uuid"
)

func JobStatusKey(tenantID, jobID uuid.UUID) string {
	return fmt.Sprintf("job:%s:%s", tenantID, jobID)
}

func RateLimitKey(keyPrefix string) string {
	return fmt.Sprintf("ratelimit:%s", keyPrefix)
}

// JobEventsChannel is the pub/sub channel carrying change events for one job.
func JobEventsChannel(jobID uuid.UUID) string {
	return fmt.Sprintf("batch:%s:events", jobID)
}
