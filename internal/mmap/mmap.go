// Package mmap provides read-only memory mapping for bulk vault loads.
// On platforms without mmap support, callers fall back to buffered reads.
package mmap

import "os"

// Map maps size bytes of f read-only. The returned slice must be released
// with Unmap.
func Map(f *os.File, size int) ([]byte, error) {
	return osMap(f, size)
}

// Unmap releases a mapping created by Map.
func Unmap(data []byte) error {
	return osUnmap(data)
}
