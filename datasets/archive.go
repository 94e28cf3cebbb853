package datasets

import (
	"encoding/gob"
	"fmt"
	"log"
	"os"
	"path/filepath"
)

// archiveVersion is incremented when the on-disk archive format changes.
const archiveVersion = 1

// SplitGroup is one split's raw arrays as stored in an archive: image rows,
// labels as an n x 1 column matrix, and per-sample writer ids. Writer ids
// identify who wrote each character sample; they are carried through the
// archive but not used by Dataset.
type SplitGroup struct {
	Images  [][]float32
	Labels  [][]int
	Writers []int
}

// Archive is the packaged multi-split container an EMNIST-style dataset is
// distributed in: a training group, a testing group, and the class-index
// mapping table (rows of [class index, original label code]).
type Archive struct {
	Version int
	Train   SplitGroup
	Test    SplitGroup
	Mapping [][]int
}

// LoadArchive reads a gob-encoded archive from path and validates its
// format version. The whole archive is materialized into memory.
func LoadArchive(path string) (*Archive, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", path, err)
	}
	defer fh.Close()

	var a Archive
	if err := gob.NewDecoder(fh).Decode(&a); err != nil {
		return nil, fmt.Errorf("decode archive %s: %w", path, err)
	}
	if a.Version != archiveVersion {
		return nil, fmt.Errorf("archive version mismatch: archive=%d expected=%d", a.Version, archiveVersion)
	}
	return &a, nil
}

// SaveArchive writes the archive to path using an atomic write (create temp
// file then rename). The stored version is always the current format version.
func SaveArchive(path string, a *Archive) error {
	if path == "" {
		return fmt.Errorf("empty archive path")
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}

	tmpFile, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("create temp archive file: %w", err)
	}
	tmpName := tmpFile.Name()
	defer func() {
		tmpFile.Close()
		_ = os.Remove(tmpName)
	}()

	out := *a
	out.Version = archiveVersion
	if err := gob.NewEncoder(tmpFile).Encode(&out); err != nil {
		return fmt.Errorf("encode archive to temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		log.Printf("warning: sync temp archive file: %v", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp archive file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename temp archive to target: %w", err)
	}
	return nil
}

// FlattenLabels flattens the archive's column-matrix label layout into a
// plain label vector. Rows are concatenated in order, so an n x 1 column
// becomes its n scalars.
func FlattenLabels(labels [][]int) []int {
	total := 0
	for _, row := range labels {
		total += len(row)
	}
	flat := make([]int, 0, total)
	for _, row := range labels {
		flat = append(flat, row...)
	}
	return flat
}
