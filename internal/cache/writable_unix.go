//go:build unix

package cache

import "golang.org/x/sys/unix"

// writable reports whether the current process may create files in dir.
func writable(dir string) bool {
	return unix.Access(dir, unix.W_OK) == nil
}
