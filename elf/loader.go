package elf

import (
	"fmt"
)

// SegmentLoader copies the image's loadable (PT_LOAD) segments into a caller
// owned destination buffer.
//
// The destination's first byte corresponds to file address base.  Passing
// base = 0 makes destination indices equal to segment virtual addresses;
// passing the low bound of AddressRange only requires RequiredSize() bytes.
type SegmentLoader struct {
	image *Image
}

func NewSegmentLoader(image *Image) *SegmentLoader {
	return &SegmentLoader{
		image: image,
	}
}

func (loader *SegmentLoader) forEachLoadable(
	visit func(ProgramHeaderEntry) error,
) error {
	headers, err := loader.image.ProgramHeaders()
	if err != nil {
		return err
	}

	for {
		header, ok := headers.Next()
		if !ok {
			return nil
		}

		if header.ProgramType != ProgramLoadable {
			continue
		}

		err := visit(header)
		if err != nil {
			return err
		}
	}
}

// AddressRange returns [low, high), the file address span covered by all
// loadable segments' memory images.  Both are zero when the image has no
// loadable segment.
func (loader *SegmentLoader) AddressRange() (FileAddress, FileAddress, error) {
	found := false
	low := uint64(0)
	high := uint64(0)
	err := loader.forEachLoadable(func(header ProgramHeaderEntry) error {
		end := header.VirtualAddress + header.MemoryImageSize
		if end < header.VirtualAddress {
			return fmt.Errorf(
				"%w: segment memory image overflows (%#x + %#x)",
				ErrOutOfBounds,
				header.VirtualAddress,
				header.MemoryImageSize)
		}

		if !found || header.VirtualAddress < low {
			low = header.VirtualAddress
		}

		if !found || end > high {
			high = end
		}

		found = true
		return nil
	})
	if err != nil {
		return 0, 0, err
	}

	return FileAddress(low), FileAddress(high), nil
}

// RequiredSize returns the number of bytes the destination must provide when
// based at the low bound of AddressRange.
func (loader *SegmentLoader) RequiredSize() (uint64, error) {
	low, high, err := loader.AddressRange()
	if err != nil {
		return 0, err
	}

	return uint64(high - low), nil
}

func (loader *SegmentLoader) checkSegment(
	header ProgramHeaderEntry,
	destination []byte,
	base FileAddress,
) error {
	if header.FileImageSize > header.MemoryImageSize {
		return fmt.Errorf(
			"%w: segment file image larger than memory image (%d > %d)",
			ErrOutOfBounds,
			header.FileImageSize,
			header.MemoryImageSize)
	}

	if !inBounds(
		header.ContentOffset,
		header.FileImageSize,
		loader.image.Len()) {

		return fmt.Errorf(
			"%w: segment file image (%d + %d > %d)",
			ErrOutOfBounds,
			header.ContentOffset,
			header.FileImageSize,
			loader.image.Len())
	}

	if header.VirtualAddress < uint64(base) {
		return fmt.Errorf(
			"%w: segment address (%s) below destination base (%s)",
			ErrOutOfBounds,
			FileAddress(header.VirtualAddress),
			base)
	}

	start := header.VirtualAddress - uint64(base)
	if !inBounds(start, header.MemoryImageSize, len(destination)) {
		return fmt.Errorf(
			"%w: segment memory image (%s + %d) exceeds destination (%d)",
			ErrOutOfBounds,
			FileAddress(header.VirtualAddress),
			header.MemoryImageSize,
			len(destination))
	}

	return nil
}

// Load copies every loadable segment's file image to
// destination[vaddr-base : vaddr-base+filesz] and zero fills the remainder of
// its memory image (bss).  All segments are checked before any byte is
// written; on error the destination is unmodified.  The source is never
// written.
func (loader *SegmentLoader) Load(destination []byte, base FileAddress) error {
	err := loader.forEachLoadable(func(header ProgramHeaderEntry) error {
		return loader.checkSegment(header, destination, base)
	})
	if err != nil {
		return err
	}

	content := loader.image.Content()
	return loader.forEachLoadable(func(header ProgramHeaderEntry) error {
		start := header.VirtualAddress - uint64(base)
		fileEnd := start + header.FileImageSize
		memEnd := start + header.MemoryImageSize

		copy(
			destination[start:fileEnd],
			content[header.ContentOffset:header.ContentOffset+header.FileImageSize])
		clear(destination[fileEnd:memEnd])
		return nil
	})
}
