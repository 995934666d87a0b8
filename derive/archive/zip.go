// Package archive expands zip-based containers for the derivation pipeline.
package archive

import (
	"os"
	"path/filepath"

	getter "github.com/hashicorp/go-getter"

	"github.com/teranos/artificer/errors"
)

// Limits guarding against archive bombs
const (
	DefaultFilesLimit    = 10000
	DefaultFileSizeLimit = 64 << 20
)

// Zip unpacks zip, jar, war and ear content with go-getter's decompressor
type Zip struct {
	FilesLimit    int
	FileSizeLimit int64
}

// NewZip returns an unpacker with the default limits
func NewZip() *Zip {
	return &Zip{FilesLimit: DefaultFilesLimit, FileSizeLimit: DefaultFileSizeLimit}
}

// Unpack writes the entries of content below dir
func (z *Zip) Unpack(content []byte, dir string) error {
	src, err := os.CreateTemp("", "artificer-*.zip")
	if err != nil {
		return errors.Wrap(err, "failed to stage archive")
	}
	defer os.Remove(src.Name())

	if _, err := src.Write(content); err != nil {
		src.Close()
		return errors.Wrap(err, "failed to stage archive")
	}
	if err := src.Close(); err != nil {
		return errors.Wrap(err, "failed to stage archive")
	}

	d := &getter.ZipDecompressor{FilesLimit: z.FilesLimit, FileSizeLimit: z.FileSizeLimit}
	if err := d.Decompress(filepath.Clean(dir), src.Name(), true, 0); err != nil {
		return errors.Wrap(err, "failed to unpack zip archive")
	}
	return nil
}
