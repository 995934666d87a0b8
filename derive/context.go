package derive

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/teranos/artificer/errors"
)

// ArchiveContext is the per-run state of one expanded archive: the working
// directory holding its entries plus a scratch map builders may share.
// It is never persisted.
type ArchiveContext struct {
	// WorkDir holds the unpacked entries
	WorkDir string
	// ArchiveType is the type of the archive the entries came from
	ArchiveType string

	custom map[string]interface{}
}

func newArchiveContext(workDir, archiveType string) *ArchiveContext {
	return &ArchiveContext{WorkDir: workDir, ArchiveType: archiveType, custom: make(map[string]interface{})}
}

// IsExpandedFromArchive reports whether content under detection came out of an archive.
// Entries are never expanded again.
func (c *ArchiveContext) IsExpandedFromArchive() bool {
	return c != nil && c.WorkDir != ""
}

// Set stores a plugin value
func (c *ArchiveContext) Set(key string, value interface{}) {
	c.custom[key] = value
}

// Get returns a plugin value
func (c *ArchiveContext) Get(key string) (interface{}, bool) {
	v, ok := c.custom[key]
	return v, ok
}

// Entries lists the regular files of the archive in path order.
// Names are slash-separated paths relative to the archive root.
func (c *ArchiveContext) Entries() ([]Content, error) {
	var out []Content
	err := filepath.WalkDir(c.WorkDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(c.WorkDir, p)
		if err != nil {
			return err
		}
		b, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		out = append(out, Content{Name: filepath.ToSlash(rel), Bytes: b})
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read archive entries in %s", c.WorkDir)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Cleanup removes the working directory
func (c *ArchiveContext) Cleanup() error {
	if c.WorkDir == "" {
		return nil
	}
	return errors.Wrapf(os.RemoveAll(c.WorkDir), "failed to remove %s", c.WorkDir)
}
