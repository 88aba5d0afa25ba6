package ports

import (
	"context"

	"repobuild/internal/types"
)

// NotifierPort announces repository build transitions to the outside
// world. Callers log a returned error and carry on.
type NotifierPort interface {
	Notify(ctx context.Context, event types.BuildEvent) error
}
