package container

import (
	"archive/tar"
	"bytes"
	"fmt"
	"time"
)

// File is one entry of an archive copied into a container.
type File struct {
	Name    string
	Content []byte
	Mode    int64
}

// Archive builds an uncompressed tar stream holding files. Entries default to
// mode 0644.
func Archive(files ...File) (*bytes.Buffer, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	now := time.Now()

	for _, f := range files {
		mode := f.Mode
		if mode == 0 {
			mode = 0o644
		}
		hdr := &tar.Header{
			Name:    f.Name,
			Mode:    mode,
			Size:    int64(len(f.Content)),
			ModTime: now,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return nil, fmt.Errorf("write tar header for %s: %w", f.Name, err)
		}
		if _, err := tw.Write(f.Content); err != nil {
			return nil, fmt.Errorf("write tar entry %s: %w", f.Name, err)
		}
	}

	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("close tar archive: %w", err)
	}
	return &buf, nil
}
