//go:build unix

package util

import "syscall"

// FreeSpace returns the number of bytes available to unprivileged
// processes on the filesystem containing path.
func FreeSpace(path string) (int64, error) {
	var st syscall.Statfs_t
	if err := syscall.Statfs(path, &st); err != nil {
		return 0, err
	}
	return int64(st.Bavail) * int64(st.Bsize), nil
}
