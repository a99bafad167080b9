//go:build !windows

package shimcache

import "github.com/4n6ix/triagehost/internal/engine"

func readSystemCache() ([]byte, error) {
	return nil, engine.ErrUnsupportedPlatform
}
