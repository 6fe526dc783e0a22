//go:build !linux && !darwin

package model

// No portable free-space call here; skip the check.
func diskFree(dir string) (int64, bool) {
	return 0, false
}
