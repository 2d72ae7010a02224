package render

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// ArchiveMember is one file extracted from an archive upload, to be
// dispatched as a child ingest task with a parent link (spec section 4.5:
// archives fan out into per-member ingests rather than producing pages
// themselves).
type ArchiveMember struct {
	Name string
	Data []byte
}

// ExpandArchive extracts every regular file from a ZIP archive held in
// memory, grounded on archive/unzip.go's extraction loop. Generalized
// from that function's panic-on-error, write-to-disk behavior into an
// error-returning, in-memory read, since pipeline stages must report
// failures through the task's error/attempt machinery rather than crash
// the worker process.
//
// The zip-slip guard is the same structural check as the teacher's: a
// member path is rejected if, once cleaned and joined under a nominal
// root, it would not stay under that root. Directory entries are
// skipped; only regular file members are returned.
func ExpandArchive(data []byte) ([]ArchiveMember, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open zip archive: %w", err)
	}

	const root = "/archive-root"
	var members []ArchiveMember
	for _, f := range reader.File {
		if f.FileInfo().IsDir() {
			continue
		}

		memberPath := filepath.Join(root, f.Name)
		if !strings.HasPrefix(memberPath, filepath.Clean(root)+string(filepath.Separator)) {
			return nil, fmt.Errorf("archive member %q escapes extraction root (zip slip)", f.Name)
		}

		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open archive member %q: %w", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read archive member %q: %w", f.Name, err)
		}

		members = append(members, ArchiveMember{Name: f.Name, Data: data})
	}
	return members, nil
}
