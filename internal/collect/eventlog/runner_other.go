//go:build !windows

package eventlog

import (
	"context"

	"github.com/4n6ix/triagehost/internal/engine"
)

func queryChannel(context.Context, string, int) ([]byte, error) {
	return nil, engine.ErrUnsupportedPlatform
}
