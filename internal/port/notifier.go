package port

import (
	"context"

	"github.com/rl1809/warehouse-flow/internal/core/domain"
)

// Notifier is the hook into the rendering layer.
type Notifier interface {
	Render(ctx context.Context, c domain.Collection)
	Notify(ctx context.Context, notice domain.Notice)
}
