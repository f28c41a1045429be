//go:build unix

package hardware

import "golang.org/x/sys/unix"

// isRoot reports whether the process may access /dev/mem and the GPIO
// registers.
func isRoot() bool {
	return unix.Geteuid() == 0
}
