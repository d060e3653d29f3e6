package elf

import (
	"fmt"
)

var (
	ErrInvalidMagic               = fmt.Errorf("invalid elf magic number")
	ErrUnsupportedClassOrEncoding = fmt.Errorf("unsupported elf class or data encoding")
	ErrTruncatedHeader            = fmt.Errorf("truncated elf header")
	ErrTruncatedTable             = fmt.Errorf("truncated elf table")
	ErrOutOfBounds                = fmt.Errorf("out of bound")
	ErrUnsupportedRelocationType  = fmt.Errorf("unsupported relocation type")
)

// inBounds reports whether [offset, offset+size) fits in a buffer of the
// given length, without overflowing.
func inBounds(offset uint64, size uint64, length int) bool {
	l := uint64(length)
	return offset <= l && size <= l-offset
}
