// Package evidence bundles scan output into an integrity-verified
// archive: the result document, a chain-of-custody record, and a
// manifest of per-file digests, optionally sealed with a
// password-derived key.
package evidence

import (
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/flate"
	"github.com/spf13/afero"

	"github.com/4n6ix/triagehost/internal/engine"
)

const (
	manifestName = "manifest.json"
	custodyName  = "chain_of_custody.txt"

	// EncryptedExt marks sealed archives.
	EncryptedExt = ".enc"
)

// File is one payload to bundle.
type File struct {
	Name string
	Data []byte
}

// Options identifies the case and controls sealing.
type Options struct {
	CaseID      string
	Examiner    string
	Hostname    string
	ToolVersion string
	// Password seals the archive when non-empty. The password itself is
	// never stored; only derivation parameters are.
	Password string
	// OutputDir receives the archive and its digest sidecar.
	OutputDir string
}

// Manifest is the integrity record stored inside the archive.
type Manifest struct {
	CaseID      string         `json:"case_id"`
	EvidenceID  string         `json:"evidence_id"`
	CreatedUTC  string         `json:"created_utc"`
	Examiner    string         `json:"examiner"`
	Hostname    string         `json:"hostname"`
	ToolVersion string         `json:"tool_version"`
	Files       []ManifestFile `json:"files"`
}

// ManifestFile records one bundled file's identity.
type ManifestFile struct {
	Path      string `json:"path"`
	SizeBytes int64  `json:"size_bytes"`
	SHA256    string `json:"sha256"`
}

// Packager writes evidence archives. The zero value is not usable; use
// NewPackager.
type Packager struct {
	fs    afero.Fs
	clock func() time.Time
	newID func() string
}

func NewPackager(fs afero.Fs) *Packager {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Packager{
		fs:    fs,
		clock: time.Now,
		newID: func() string { return uuid.NewString() },
	}
}

// Package bundles files into a timestamped archive and writes a digest
// sidecar next to it. It returns the archive path.
func (p *Packager) Package(files []File, opts Options) (string, error) {
	if len(files) == 0 {
		return "", fmt.Errorf("nothing to package: %w", engine.ErrNotFound)
	}
	caseID := opts.CaseID
	if caseID == "" {
		caseID = "CASE-" + p.newID()[:8]
	}

	now := p.clock().UTC()
	manifest := Manifest{
		CaseID:      caseID,
		EvidenceID:  p.newID(),
		CreatedUTC:  now.Format(time.RFC3339),
		Examiner:    opts.Examiner,
		Hostname:    opts.Hostname,
		ToolVersion: opts.ToolVersion,
	}
	for _, f := range files {
		sum := sha256.Sum256(f.Data)
		manifest.Files = append(manifest.Files, ManifestFile{
			Path:      f.Name,
			SizeBytes: int64(len(f.Data)),
			SHA256:    hex.EncodeToString(sum[:]),
		})
	}

	archive, err := buildZip(files, manifest)
	if err != nil {
		return "", err
	}

	name := fmt.Sprintf("%s_%s_evidence.zip", caseID, now.Format("20060102T150405Z"))
	if opts.Password != "" {
		archive, err = seal(archive, opts.Password)
		if err != nil {
			return "", err
		}
		name += EncryptedExt
	}

	path := filepath.Join(opts.OutputDir, name)
	if err := afero.WriteFile(p.fs, path, archive, 0o600); err != nil {
		return "", fmt.Errorf("write archive: %w", err)
	}
	if err := p.writeSidecar(path, archive); err != nil {
		return "", err
	}
	return path, nil
}

// writeSidecar records the archive's own digest in sha256sum format.
func (p *Packager) writeSidecar(archivePath string, archive []byte) error {
	sum := sha256.Sum256(archive)
	line := fmt.Sprintf("%s  %s\n", hex.EncodeToString(sum[:]), filepath.Base(archivePath))
	if err := afero.WriteFile(p.fs, archivePath+".sha256", []byte(line), 0o600); err != nil {
		return fmt.Errorf("write digest sidecar: %w", err)
	}
	return nil
}

func buildZip(files []File, manifest Manifest) ([]byte, error) {
	manifestJSON, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", engine.ErrSerialization)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.BestCompression)
	})

	entries := append([]File{}, files...)
	entries = append(entries,
		File{Name: manifestName, Data: manifestJSON},
		File{Name: custodyName, Data: []byte(custodyDocument(manifest))},
	)
	for _, f := range entries {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: f.Name, Method: zip.Deflate})
		if err != nil {
			return nil, fmt.Errorf("create archive entry %s: %w", f.Name, err)
		}
		if _, err := w.Write(f.Data); err != nil {
			return nil, fmt.Errorf("write archive entry %s: %w", f.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finalize archive: %w", err)
	}
	return buf.Bytes(), nil
}

func custodyDocument(m Manifest) string {
	var b strings.Builder
	b.WriteString("CHAIN OF CUSTODY RECORD\n")
	b.WriteString("=======================\n\n")
	fmt.Fprintf(&b, "Case ID:        %s\n", m.CaseID)
	fmt.Fprintf(&b, "Evidence ID:    %s\n", m.EvidenceID)
	fmt.Fprintf(&b, "Collected:      %s\n", m.CreatedUTC)
	fmt.Fprintf(&b, "Examiner:       %s\n", m.Examiner)
	fmt.Fprintf(&b, "Source host:    %s\n", m.Hostname)
	fmt.Fprintf(&b, "Tool version:   %s\n\n", m.ToolVersion)
	b.WriteString("Bundled files:\n")
	for _, f := range m.Files {
		fmt.Fprintf(&b, "  %s  %d bytes  sha256:%s\n", f.Path, f.SizeBytes, f.SHA256)
	}
	b.WriteString("\nVerify each digest against manifest.json before relying on contents.\n")
	return b.String()
}

// Verify opens an archive, decrypting it when a password is given, and
// recomputes every digest recorded in its manifest. It returns the
// manifest on success.
func (p *Packager) Verify(path, password string) (*Manifest, error) {
	raw, err := afero.ReadFile(p.fs, path)
	if err != nil {
		return nil, fmt.Errorf("read archive: %w", err)
	}
	if err := p.verifySidecar(path, raw); err != nil {
		return nil, err
	}

	if strings.HasSuffix(path, EncryptedExt) {
		raw, err = unseal(raw, password)
		if err != nil {
			return nil, err
		}
	}

	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	contents := make(map[string][]byte, len(zr.File))
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open entry %s: %w", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read entry %s: %w", f.Name, err)
		}
		contents[f.Name] = data
	}

	manifestJSON, ok := contents[manifestName]
	if !ok {
		return nil, fmt.Errorf("archive has no manifest: %w", engine.ErrNotFound)
	}
	var manifest Manifest
	if err := json.Unmarshal(manifestJSON, &manifest); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", engine.ErrParse)
	}

	for _, want := range manifest.Files {
		data, ok := contents[want.Path]
		if !ok {
			return nil, fmt.Errorf("manifest lists %s but archive lacks it", want.Path)
		}
		sum := sha256.Sum256(data)
		if hex.EncodeToString(sum[:]) != want.SHA256 {
			return nil, fmt.Errorf("digest mismatch for %s", want.Path)
		}
		if int64(len(data)) != want.SizeBytes {
			return nil, fmt.Errorf("size mismatch for %s", want.Path)
		}
	}
	return &manifest, nil
}

// verifySidecar checks the archive against its .sha256 companion when
// one exists; a missing sidecar is not an error.
func (p *Packager) verifySidecar(path string, raw []byte) error {
	line, err := afero.ReadFile(p.fs, path+".sha256")
	if err != nil {
		return nil
	}
	fields := strings.Fields(string(line))
	if len(fields) == 0 {
		return fmt.Errorf("malformed digest sidecar: %w", engine.ErrParse)
	}
	sum := sha256.Sum256(raw)
	if hex.EncodeToString(sum[:]) != fields[0] {
		return fmt.Errorf("archive digest does not match sidecar")
	}
	return nil
}
