package persistence

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/4n6ix/triagehost/internal/engine"
)

// startupDirs lists the filesystem locations executed at logon.
func startupDirs() []string {
	var dirs []string
	if pd := os.Getenv("ProgramData"); pd != "" {
		dirs = append(dirs, filepath.Join(pd, `Microsoft\Windows\Start Menu\Programs\StartUp`))
	}
	if ad := os.Getenv("APPDATA"); ad != "" {
		dirs = append(dirs, filepath.Join(ad, `Microsoft\Windows\Start Menu\Programs\Startup`))
	}
	return dirs
}

func startupSource(fs afero.Fs) func(context.Context) ([]engine.PersistenceEntry, error) {
	return func(ctx context.Context) ([]engine.PersistenceEntry, error) {
		return collectStartupFolders(ctx, fs, startupDirs())
	}
}

func collectStartupFolders(ctx context.Context, fs afero.Fs, dirs []string) ([]engine.PersistenceEntry, error) {
	var entries []engine.PersistenceEntry
	for _, dir := range dirs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		infos, err := afero.ReadDir(fs, dir)
		if err != nil {
			// A missing profile folder is normal, not a failure.
			continue
		}
		for _, info := range infos {
			if info.IsDir() || strings.EqualFold(info.Name(), "desktop.ini") {
				continue
			}
			entries = append(entries, engine.PersistenceEntry{
				Type:     engine.MechanismStartupFolder,
				Name:     info.Name(),
				Command:  filepath.Join(dir, info.Name()),
				Source:   "Startup Folder",
				Location: dir,
			})
		}
	}
	return entries, nil
}
