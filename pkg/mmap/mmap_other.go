//go:build !unix

package mmap

import (
	"io"
	"os"
)

// Platforms without mmap read the whole file into memory instead.
func mmap(f *os.File, length int) ([]byte, error) {
	buf := make([]byte, length)
	if _, err := f.ReadAt(buf, 0); err != nil && err != io.EOF {
		return nil, err
	}
	return buf, nil
}

func munmap(b []byte) error {
	return nil
}

func madvise(b []byte, advice Advice) error {
	return nil
}
