package stage

import (
	"context"

	"loom/internal/queue"
)

// Handler is one step of the render pipeline as the workflow manager sees
// it. Prepare runs before the item enters the stage's processing status,
// Execute does the work, and HealthCheck gates daemon startup.
type Handler interface {
	Prepare(context.Context, *queue.Item) error
	Execute(context.Context, *queue.Item) error
	HealthCheck(context.Context) Health
}
