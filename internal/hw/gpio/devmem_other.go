//go:build !linux

package gpio

import "errors"

// NewDevMemSurface is only available on linux.
func NewDevMemSurface() (Surface, error) {
	return nil, errors.New("devmem register surface requires linux")
}
