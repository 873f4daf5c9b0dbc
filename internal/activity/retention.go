package activity

import (
	"context"
	"time"

	"github.com/edvin/deploytrack/internal/core"
)

// Retention contains the activities enforcing instance retention.
type Retention struct {
	instances *core.InstanceService
	retention time.Duration
}

func NewRetention(instances *core.InstanceService, retention time.Duration) *Retention {
	return &Retention{instances: instances, retention: retention}
}

// PurgeDeletedInstances hard-deletes soft-deleted instance rows older than
// the retention window and returns how many rows went away.
func (a *Retention) PurgeDeletedInstances(ctx context.Context) (int64, error) {
	return a.instances.PurgeDeletedBefore(ctx, time.Now().Add(-a.retention))
}
