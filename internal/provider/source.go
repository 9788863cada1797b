package provider

import (
	"context"

	"github.com/t77yq/cloudmon/internal/model"
)

// Source pulls raw metric samples from one infrastructure provider.
// A failing source never blocks collection from the others.
type Source interface {
	// Name returns the provider identifier samples are stamped with
	Name() model.Provider

	// Pull retrieves the current raw samples from the provider
	Pull(ctx context.Context) ([]model.RawSample, error)
}
