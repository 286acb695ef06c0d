//go:build !unix

package util

import "math"

// FreeSpace is not implemented on this platform; report unlimited so
// the preflight check never blocks a download.
func FreeSpace(path string) (int64, error) {
	return math.MaxInt64, nil
}
