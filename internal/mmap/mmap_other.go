//go:build !unix

package mmap

import (
	"errors"
	"os"
)

// ErrUnsupported signals that mmap is unavailable on this platform.
var ErrUnsupported = errors.New("mmap: not supported on this platform")

func osMap(_ *os.File, _ int) ([]byte, error) {
	return nil, ErrUnsupported
}

func osUnmap(_ []byte) error {
	return ErrUnsupported
}
