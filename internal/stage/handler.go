package stage

import (
	"context"

	"distill/internal/bundle"
)

// Handler describes the contract the workflow manager needs from each stage.
// Prepare validates inputs and performs cheap setup before the bundle enters
// the stage's processing status; Execute performs the work and mutates the
// bundle in place. Handlers persist artifacts to the bundle folder themselves
// and leave descriptor persistence to the caller.
type Handler interface {
	Prepare(context.Context, *bundle.Bundle) error
	Execute(context.Context, *bundle.Bundle) error
	HealthCheck(context.Context) Health
}
