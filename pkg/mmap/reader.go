// Package mmap provides read-only memory-mapped file access. Container
// files are mapped once and their members are sliced out of the mapping
// without intermediate copies.
package mmap

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// Advice tells the kernel how the mapping will be accessed
type Advice int

const (
	AdviceNormal Advice = iota
	AdviceSequential
	AdviceRandom
	AdviceWillNeed
)

// Reader provides memory-mapped file reading. It implements io.ReaderAt
// so it can be handed directly to archive and columnar decoders.
type Reader struct {
	file     *os.File
	data     []byte
	fileSize int64
	pageSize int

	// Stats
	bytesRead int64
	pagesRead int64

	mu sync.RWMutex
}

// NewReader maps filename read-only. Empty files yield a Reader with no
// data rather than an error; mmap rejects zero-length mappings.
func NewReader(filename string) (*Reader, error) {
	file, err := os.Open(filename) //nolint:gosec // G304: path comes from the caller
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	r := &Reader{
		file:     file,
		fileSize: stat.Size(),
		pageSize: os.Getpagesize(),
	}
	if r.fileSize == 0 {
		return r, nil
	}

	data, err := mmap(file, int(r.fileSize))
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to mmap file: %w", err)
	}
	r.data = data

	// Archive members are read by offset, not front to back
	_ = madvise(r.data, AdviceRandom)

	return r, nil
}

// Size returns the mapped length in bytes
func (r *Reader) Size() int64 {
	return r.fileSize
}

// Name returns the path the reader was opened with
func (r *Reader) Name() string {
	if r.file == nil {
		return ""
	}
	return r.file.Name()
}

// ReadAll returns the entire memory-mapped file data
func (r *Reader) ReadAll() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.bytesRead += r.fileSize
	r.pagesRead += r.pages(r.fileSize)

	return r.data
}

// ReadRange returns a zero-copy view of [offset, offset+length), clamped to
// the end of the file
func (r *Reader) ReadRange(offset, length int64) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.data == nil && r.fileSize > 0 {
		return nil, fmt.Errorf("reader is closed")
	}
	if offset < 0 || offset >= r.fileSize {
		return nil, fmt.Errorf("offset %d out of range [0, %d)", offset, r.fileSize)
	}

	end := offset + length
	if end > r.fileSize {
		end = r.fileSize
	}

	_ = madvise(r.data[offset:end], AdviceWillNeed)

	r.bytesRead += end - offset
	r.pagesRead += r.pages(end - offset)

	return r.data[offset:end], nil
}

// ReadAt implements io.ReaderAt over the mapping
func (r *Reader) ReadAt(p []byte, off int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.data == nil && r.fileSize > 0 {
		return 0, fmt.Errorf("reader is closed")
	}
	if off < 0 {
		return 0, fmt.Errorf("negative offset %d", off)
	}
	if off >= r.fileSize {
		return 0, io.EOF
	}

	n := copy(p, r.data[off:])
	r.bytesRead += int64(n)
	r.pagesRead += r.pages(int64(n))
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (r *Reader) pages(n int64) int64 {
	return (n + int64(r.pageSize) - 1) / int64(r.pageSize)
}

// Close unmaps the file and closes it
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var err error

	if r.data != nil {
		err = munmap(r.data)
		r.data = nil
	}

	if r.file != nil {
		if closeErr := r.file.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
		r.file = nil
	}

	return err
}

// Stats returns reading statistics
func (r *Reader) Stats() (bytesRead, pagesRead int64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.bytesRead, r.pagesRead
}
