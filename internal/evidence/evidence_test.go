package evidence

import (
	"archive/zip"
	"bytes"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPackager(fs afero.Fs) *Packager {
	ids := []string{"11111111-2222-4333-8444-555555555555", "99999999-8888-4777-8666-555555555555"}
	p := NewPackager(fs)
	p.clock = func() time.Time { return time.Date(2024, 6, 15, 8, 0, 0, 0, time.UTC) }
	p.newID = func() string {
		id := ids[0]
		if len(ids) > 1 {
			ids = ids[1:]
		}
		return id
	}
	return p
}

func resultFile() File {
	return File{Name: "result.json", Data: []byte(`{"scan_metadata":{"scan_id":"x"}}`)}
}

func TestPackageAndVerify(t *testing.T) {
	fs := afero.NewMemMapFs()
	p := testPackager(fs)

	path, err := p.Package([]File{resultFile()}, Options{
		CaseID:      "IR-2024-042",
		Examiner:    "A. Analyst",
		Hostname:    "WS01",
		ToolVersion: "1.2.0",
		OutputDir:   "/out",
	})
	require.NoError(t, err)
	assert.Equal(t, "/out/IR-2024-042_20240615T080000Z_evidence.zip", path)

	exists, err := afero.Exists(fs, path+".sha256")
	require.NoError(t, err)
	assert.True(t, exists, "digest sidecar missing")

	manifest, err := p.Verify(path, "")
	require.NoError(t, err)
	assert.Equal(t, "IR-2024-042", manifest.CaseID)
	assert.Equal(t, "A. Analyst", manifest.Examiner)
	assert.Equal(t, "2024-06-15T08:00:00Z", manifest.CreatedUTC)
	require.Len(t, manifest.Files, 1)
	assert.Equal(t, "result.json", manifest.Files[0].Path)
	assert.Len(t, manifest.Files[0].SHA256, 64)
}

func TestPackageContainsCustodyRecord(t *testing.T) {
	fs := afero.NewMemMapFs()
	p := testPackager(fs)
	path, err := p.Package([]File{resultFile()}, Options{CaseID: "IR-1", OutputDir: "/out"})
	require.NoError(t, err)

	raw, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	require.NoError(t, err)

	names := make(map[string]bool)
	var custody string
	for _, f := range zr.File {
		names[f.Name] = true
		if f.Name == custodyName {
			rc, err := f.Open()
			require.NoError(t, err)
			data, err := io.ReadAll(rc)
			rc.Close()
			require.NoError(t, err)
			custody = string(data)
		}
	}
	assert.True(t, names["result.json"])
	assert.True(t, names[manifestName])
	require.True(t, names[custodyName])
	assert.Contains(t, custody, "Case ID:        IR-1")
	assert.Contains(t, custody, "sha256:")
}

func TestPackageEncryptedRoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	p := testPackager(fs)

	path, err := p.Package([]File{resultFile()}, Options{
		CaseID:    "IR-2",
		OutputDir: "/out",
		Password:  "correct horse battery staple",
	})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, ".zip"+EncryptedExt))

	// Sealed container must not leak the payload.
	raw, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "scan_metadata")
	assert.Equal(t, sealMagic, string(raw[:4]))

	manifest, err := p.Verify(path, "correct horse battery staple")
	require.NoError(t, err)
	assert.Equal(t, "IR-2", manifest.CaseID)

	_, err = p.Verify(path, "wrong password")
	assert.ErrorContains(t, err, "wrong password or tampered")
}

func TestVerifyDetectsTampering(t *testing.T) {
	fs := afero.NewMemMapFs()
	p := testPackager(fs)
	path, err := p.Package([]File{resultFile()}, Options{CaseID: "IR-3", OutputDir: "/out"})
	require.NoError(t, err)

	raw, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	raw[len(raw)/2] ^= 0xFF
	require.NoError(t, afero.WriteFile(fs, path, raw, 0o600))

	_, err = p.Verify(path, "")
	assert.Error(t, err)
}

func TestPackageEmpty(t *testing.T) {
	p := testPackager(afero.NewMemMapFs())
	_, err := p.Package(nil, Options{OutputDir: "/out"})
	assert.Error(t, err)
}

func TestSealUnseal(t *testing.T) {
	plain := []byte("evidence payload")
	sealed, err := seal(plain, "pw")
	require.NoError(t, err)
	assert.NotEqual(t, plain, sealed)

	got, err := unseal(sealed, "pw")
	require.NoError(t, err)
	assert.Equal(t, plain, got)

	_, err = unseal(sealed[:10], "pw")
	assert.Error(t, err)

	_, err = unseal([]byte("not a container at all........."), "pw")
	assert.Error(t, err)
}
