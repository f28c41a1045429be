//go:build !unix

package hardware

func isRoot() bool {
	return false
}
