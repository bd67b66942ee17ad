package pipeline

import (
	"context"

	"github.com/starford/mailwright/internal/apperr"
	"github.com/starford/mailwright/internal/models"
)

type destinationKey struct{}

// WithDestination attaches the destination a caller chose up front, for
// transports that cannot show a dialog mid-request.
func WithDestination(ctx context.Context, id models.Identity) context.Context {
	return context.WithValue(ctx, destinationKey{}, id)
}

// ContextPrompter answers the destination prompt from WithDestination. No
// destination in the context counts as a dismissed dialog.
type ContextPrompter struct{}

// PromptDestination implements DestinationPrompter.
func (ContextPrompter) PromptDestination(ctx context.Context, _ models.Design) (models.Identity, error) {
	id, ok := ctx.Value(destinationKey{}).(models.Identity)
	if !ok || id.Kind == models.IdentityNone {
		return models.Identity{}, apperr.ErrCancelled
	}
	return id, nil
}
