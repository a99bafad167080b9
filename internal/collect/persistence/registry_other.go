//go:build !windows

package persistence

import (
	"context"

	"github.com/4n6ix/triagehost/internal/engine"
)

func collectRunKeys(context.Context) ([]engine.PersistenceEntry, error) {
	return nil, engine.ErrUnsupportedPlatform
}

func collectServices(context.Context) ([]engine.PersistenceEntry, error) {
	return nil, engine.ErrUnsupportedPlatform
}
