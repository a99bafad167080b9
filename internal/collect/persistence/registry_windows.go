//go:build windows

package persistence

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sys/windows/registry"

	"github.com/4n6ix/triagehost/internal/engine"
)

type runKeyLocation struct {
	root  registry.Key
	label string
	path  string
}

var runKeyLocations = []runKeyLocation{
	{registry.LOCAL_MACHINE, "HKLM", `SOFTWARE\Microsoft\Windows\CurrentVersion\Run`},
	{registry.LOCAL_MACHINE, "HKLM", `SOFTWARE\Microsoft\Windows\CurrentVersion\RunOnce`},
	{registry.CURRENT_USER, "HKCU", `SOFTWARE\Microsoft\Windows\CurrentVersion\Run`},
	{registry.CURRENT_USER, "HKCU", `SOFTWARE\Microsoft\Windows\CurrentVersion\RunOnce`},
	{registry.LOCAL_MACHINE, "HKLM", `SOFTWARE\WOW6432Node\Microsoft\Windows\CurrentVersion\Run`},
	{registry.LOCAL_MACHINE, "HKLM", `SOFTWARE\WOW6432Node\Microsoft\Windows\CurrentVersion\RunOnce`},
}

func collectRunKeys(ctx context.Context) ([]engine.PersistenceEntry, error) {
	var entries []engine.PersistenceEntry
	opened := 0
	for _, loc := range runKeyLocations {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		key, err := registry.OpenKey(loc.root, loc.path, registry.QUERY_VALUE)
		if err != nil {
			continue
		}
		opened++
		fullPath := loc.label + `\` + loc.path

		names, err := key.ReadValueNames(-1)
		if err != nil {
			key.Close()
			continue
		}
		for _, name := range names {
			command, _, err := key.GetStringValue(name)
			if err != nil {
				continue
			}
			entries = append(entries, engine.PersistenceEntry{
				Type:     engine.MechanismRegistryRunKey,
				Name:     name,
				Command:  command,
				Source:   fullPath,
				Location: fullPath,
				Value:    name,
			})
		}
		key.Close()
	}
	if opened == 0 {
		return nil, fmt.Errorf("no run keys readable: %w", engine.ErrAccessDenied)
	}
	return entries, nil
}

const servicesKeyPath = `SYSTEM\CurrentControlSet\Services`

// collectServices lists auto-start services. Start type 2 is automatic.
func collectServices(ctx context.Context) ([]engine.PersistenceEntry, error) {
	root, err := registry.OpenKey(registry.LOCAL_MACHINE, servicesKeyPath,
		registry.ENUMERATE_SUB_KEYS)
	if err != nil {
		return nil, fmt.Errorf("open services key: %w", err)
	}
	defer root.Close()

	names, err := root.ReadSubKeyNames(-1)
	if err != nil {
		return nil, fmt.Errorf("enumerate services: %w", err)
	}

	var entries []engine.PersistenceEntry
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		svc, err := registry.OpenKey(root, name, registry.QUERY_VALUE)
		if err != nil {
			continue
		}
		start, _, startErr := svc.GetIntegerValue("Start")
		image, _, imageErr := svc.GetStringValue("ImagePath")
		svc.Close()
		if startErr != nil || imageErr != nil || start != 2 || strings.TrimSpace(image) == "" {
			continue
		}
		entries = append(entries, engine.PersistenceEntry{
			Type:     engine.MechanismService,
			Name:     name,
			Command:  image,
			Source:   "Service Control Manager",
			Location: `HKLM\` + servicesKeyPath + `\` + name,
		})
	}
	return entries, nil
}
