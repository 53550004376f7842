//go:build !linux && !darwin

package environment

import "errors"

func totalMemory() (uint64, error) {
	return 0, errors.New("total memory is not supported on this platform")
}
