//go:build windows

package shimcache

import (
	"fmt"

	"golang.org/x/sys/windows/registry"
)

const cacheKeyPath = `SYSTEM\CurrentControlSet\Control\Session Manager\AppCompatCache`

// readSystemCache pulls the raw AppCompatCache value from the live
// registry. Requires administrative rights on most systems.
func readSystemCache() ([]byte, error) {
	key, err := registry.OpenKey(registry.LOCAL_MACHINE, cacheKeyPath, registry.QUERY_VALUE)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cacheKeyPath, err)
	}
	defer key.Close()

	raw, _, err := key.GetBinaryValue("AppCompatCache")
	if err != nil {
		return nil, fmt.Errorf("read AppCompatCache value: %w", err)
	}
	return raw, nil
}
