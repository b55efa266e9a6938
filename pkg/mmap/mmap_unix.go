//go:build unix

package mmap

import (
	"os"

	"golang.org/x/sys/unix"
)

func mmap(f *os.File, length int) ([]byte, error) {
	return unix.Mmap(int(f.Fd()), 0, length, unix.PROT_READ, unix.MAP_SHARED)
}

func munmap(b []byte) error {
	return unix.Munmap(b)
}

// madvise is advisory only; callers ignore its error
func madvise(b []byte, advice Advice) error {
	if len(b) == 0 {
		return nil
	}
	switch advice {
	case AdviceSequential:
		return unix.Madvise(b, unix.MADV_SEQUENTIAL)
	case AdviceRandom:
		return unix.Madvise(b, unix.MADV_RANDOM)
	case AdviceWillNeed:
		return unix.Madvise(b, unix.MADV_WILLNEED)
	}
	return nil
}
