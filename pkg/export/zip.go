package export

import (
	"archive/zip"
	"bytes"
	"fmt"
	"sort"
	"time"
)

// zipEpoch is the fixed timestamp stamped on every archive entry so the
// package bytes depend only on content.
var zipEpoch = time.Unix(0, 0).UTC()

// BuildArchive writes entries into a deterministic ZIP: lexicographic entry
// order, fixed timestamps, fixed compression method.
func BuildArchive(entries map[string][]byte) ([]byte, error) {
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, name := range names {
		header := &zip.FileHeader{
			Name:     name,
			Method:   zip.Deflate,
			Modified: zipEpoch,
		}
		f, err := w.CreateHeader(header)
		if err != nil {
			return nil, fmt.Errorf("failed to add archive entry %s: %w", name, err)
		}
		if _, err := f.Write(entries[name]); err != nil {
			return nil, fmt.Errorf("failed to write archive entry %s: %w", name, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize archive: %w", err)
	}
	return buf.Bytes(), nil
}
