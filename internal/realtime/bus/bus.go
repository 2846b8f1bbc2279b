package bus

import (
	"context"

	"github.com/yungbote/progressledger/internal/realtime"
)

// Bus carries job events between processes, so a Temporal worker's progress
// reaches clients streaming from the API server.
type Bus interface {
	Publish(ctx context.Context, ev realtime.JobEvent) error
	StartForwarder(ctx context.Context, onEvent func(ev realtime.JobEvent)) error
	Close() error
}
