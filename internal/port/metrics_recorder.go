package port

import (
	"context"
	"time"
)

type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}
