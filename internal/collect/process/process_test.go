package process

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/4n6ix/triagehost/internal/auditlog"
	"github.com/4n6ix/triagehost/internal/engine"
)

func fixedList(snaps []snapshot) lister {
	return func(context.Context) ([]snapshot, error) { return snaps, nil }
}

func TestCollectHashesExecutables(t *testing.T) {
	fs := afero.NewMemMapFs()
	body := []byte("MZ fake image")
	require.NoError(t, afero.WriteFile(fs, "/bin/tool", body, 0o755))
	wantSum := sha256.Sum256(body)

	c := &Collector{
		fs: fs,
		list: fixedList([]snapshot{
			{pid: 100, ppid: 1, name: "tool", exe: "/bin/tool", user: "alice", rssBytes: 2 << 20},
			{pid: 200, ppid: 1, name: "kworker"},
		}),
	}

	contrib, err := c.Collect(context.Background(), auditlog.New())
	require.NoError(t, err)
	require.Len(t, contrib.Processes, 2)

	got := contrib.Processes[0]
	assert.Equal(t, uint32(100), got.PID)
	assert.Equal(t, hex.EncodeToString(wantSum[:]), got.SHA256)
	assert.True(t, engine.ValidHash(got.SHA256))
	assert.InDelta(t, 2.0, got.MemoryUsageMB, 0.001)

	// No executable path: nothing to hash, sentinel stays.
	assert.Equal(t, engine.HashSkipped, contrib.Processes[1].SHA256)
}

func TestCollectSkipHashes(t *testing.T) {
	c := &Collector{
		opts: Options{SkipHashes: true},
		fs:   afero.NewMemMapFs(),
		list: fixedList([]snapshot{{pid: 1, name: "init", exe: "/sbin/init"}}),
	}

	contrib, err := c.Collect(context.Background(), auditlog.New())
	require.NoError(t, err)
	assert.Equal(t, engine.HashSkipped, contrib.Processes[0].SHA256)
}

func TestCollectHashFailure(t *testing.T) {
	c := &Collector{
		fs:   afero.NewMemMapFs(), // path does not exist
		list: fixedList([]snapshot{{pid: 7, name: "ghost", exe: "/gone/ghost"}}),
	}

	contrib, err := c.Collect(context.Background(), auditlog.New())
	require.NoError(t, err)
	assert.Equal(t, engine.HashError, contrib.Processes[0].SHA256)
	assert.True(t, engine.ValidHash(contrib.Processes[0].SHA256))
}

func TestCollectListError(t *testing.T) {
	c := &Collector{
		fs:   afero.NewMemMapFs(),
		list: func(context.Context) ([]snapshot, error) { return nil, errors.New("snapshot failed") },
	}
	_, err := c.Collect(context.Background(), auditlog.New())
	assert.ErrorContains(t, err, "enumerate processes")
}

func TestCollectManyProcessesConcurrentHashing(t *testing.T) {
	fs := afero.NewMemMapFs()
	var snaps []snapshot
	for i := 0; i < 50; i++ {
		path := afero.FilePathSeparator + "bin" + afero.FilePathSeparator + string(rune('a'+i%26)) + "x"
		require.NoError(t, afero.WriteFile(fs, path, []byte{byte(i)}, 0o755))
		snaps = append(snaps, snapshot{pid: uint32(i + 1), name: "p", exe: path})
	}

	c := &Collector{opts: Options{HashWorkers: 8}, fs: fs, list: fixedList(snaps)}
	contrib, err := c.Collect(context.Background(), auditlog.New())
	require.NoError(t, err)
	for _, rec := range contrib.Processes {
		assert.True(t, engine.ValidHash(rec.SHA256))
		assert.NotEqual(t, engine.HashSkipped, rec.SHA256)
	}
}

func TestModuleFromPath(t *testing.T) {
	m := moduleFromPath(`/usr/lib/libc.so.6`)
	assert.Equal(t, "libc.so.6", m.Name)
	assert.Equal(t, "/usr/lib/libc.so.6", m.FilePath)
}

func TestIsSharedLibrary(t *testing.T) {
	assert.True(t, isSharedLibrary(`C:\Windows\System32\NTDLL.DLL`))
	assert.True(t, isSharedLibrary("/usr/lib/libc.so.6"))
	assert.False(t, isSharedLibrary("/usr/bin/python3"))
}
