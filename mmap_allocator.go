//go:build unix

package elfload

import (
	"fmt"
	"math"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/pattyshack/elfload/elf"
)

// MmapAllocator maps private anonymous pages for the destination.  The
// mapping is page aligned and zero filled by the kernel.
type MmapAllocator struct{}

func (MmapAllocator) Allocate(size uint64) (Region, error) {
	pageSize := uint64(unix.Getpagesize())
	if size > math.MaxInt-pageSize {
		return Region{}, fmt.Errorf(
			"%w: cannot mmap %d bytes",
			elf.ErrOutOfBounds,
			size)
	}

	length := (size + pageSize - 1) / pageSize * pageSize
	if length == 0 {
		length = pageSize
	}

	memory, err := unix.Mmap(
		-1,
		0,
		int(length),
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return Region{}, fmt.Errorf("failed to mmap %d bytes: %w", length, err)
	}

	return Region{
		Memory:  memory[:size],
		Address: VirtualAddress(uintptr(unsafe.Pointer(&memory[0]))),
	}, nil
}

func (MmapAllocator) Release(region Region) error {
	if cap(region.Memory) == 0 {
		return nil
	}

	err := unix.Munmap(region.Memory[:cap(region.Memory)])
	if err != nil {
		return fmt.Errorf("failed to munmap %s: %w", region.Address, err)
	}

	return nil
}
