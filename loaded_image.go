package elfload

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unsafe"

	"github.com/pattyshack/elfload/elf"
)

// Runtime address of a byte in a loaded image.
type VirtualAddress uint64

func (addr VirtualAddress) String() string {
	return fmt.Sprintf("0x%016x", uint64(addr))
}

type AddressRange struct {
	Low  VirtualAddress
	High VirtualAddress
}

func (ar AddressRange) Contains(addr VirtualAddress) bool {
	return ar.Low <= addr && addr < ar.High
}

// Region is caller owned memory that receives a loaded image.  Address is
// the runtime address of Memory[0].
type Region struct {
	Memory  []byte
	Address VirtualAddress
}

// Allocator provides zeroed destination memory for LoadImage.
type Allocator interface {
	Allocate(size uint64) (Region, error)
	Release(region Region) error
}

// MaxImageSize is the largest memory image LoadImage will allocate.
const MaxImageSize = uint64(1) << 32

// HeapAllocator allocates destination memory on the go heap.  It is meant
// for tests and inspection only: the region is not executable, and its
// address is only meaningful while the current runtime does not move heap
// objects.  Control must never be transferred into a heap region.
type HeapAllocator struct{}

func (HeapAllocator) Allocate(size uint64) (Region, error) {
	if size > math.MaxInt {
		return Region{}, fmt.Errorf(
			"%w: cannot allocate %d bytes on the heap",
			elf.ErrOutOfBounds,
			size)
	}

	memory := make([]byte, size)
	return Region{
		Memory:  memory,
		Address: VirtualAddress(uintptr(unsafe.Pointer(unsafe.SliceData(memory)))),
	}, nil
}

func (HeapAllocator) Release(Region) error {
	return nil
}

// LoadedImage is an elf image whose loadable segments were copied into a
// Region and whose relocations were applied for the region's address.
type LoadedImage struct {
	*elf.Image

	Region

	// File address of Region.Memory[0] (the lowest loadable address).
	Base elf.FileAddress

	// Runtime address minus file address.
	LoadBias uint64

	EntryPointAddress elf.FileAddress

	allocator Allocator
}

// LoadImage validates content, allocates the destination through allocator,
// loads every loadable segment, then applies relocations.  content is
// borrowed for the lifetime of the returned image.
func LoadImage(content []byte, allocator Allocator) (*LoadedImage, error) {
	image := elf.FromBytes(content)

	err := image.Validate()
	if err != nil {
		return nil, fmt.Errorf("failed to validate elf image: %w", err)
	}

	entry, err := image.EntryPoint()
	if err != nil {
		return nil, fmt.Errorf("failed to read entry point: %w", err)
	}

	_, err = image.SectionHeaderTable()
	if err != nil {
		return nil, fmt.Errorf("failed to read section header table: %w", err)
	}

	loader := elf.NewSegmentLoader(image)
	low, _, err := loader.AddressRange()
	if err != nil {
		return nil, fmt.Errorf("failed to compute segment address range: %w", err)
	}

	size, err := loader.RequiredSize()
	if err != nil {
		return nil, fmt.Errorf("failed to compute required size: %w", err)
	}

	if size > MaxImageSize {
		return nil, fmt.Errorf(
			"%w: memory image too large (%d > %d)",
			elf.ErrOutOfBounds,
			size,
			MaxImageSize)
	}

	region, err := allocator.Allocate(size)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate %d bytes: %w", size, err)
	}

	if uint64(len(region.Memory)) < size {
		_ = allocator.Release(region)
		return nil, fmt.Errorf(
			"%w: allocated region too small (%d < %d)",
			elf.ErrOutOfBounds,
			len(region.Memory),
			size)
	}

	loadBias := uint64(region.Address) - uint64(low)

	err = loader.Load(region.Memory, low)
	if err != nil {
		_ = allocator.Release(region)
		return nil, fmt.Errorf("failed to load segments: %w", err)
	}

	err = elf.NewRelocator(image).Relocate(region.Memory, low, loadBias)
	if err != nil {
		_ = allocator.Release(region)
		return nil, fmt.Errorf("failed to apply relocations: %w", err)
	}

	return &LoadedImage{
		Image:             image,
		Region:            region,
		Base:              low,
		LoadBias:          loadBias,
		EntryPointAddress: entry,
		allocator:         allocator,
	}, nil
}

func (image *LoadedImage) Close() error {
	if image.allocator == nil {
		return nil
	}

	err := image.allocator.Release(image.Region)
	image.allocator = nil
	image.Region = Region{}
	return err
}

func (image *LoadedImage) ToFileAddress(address VirtualAddress) elf.FileAddress {
	return elf.FileAddress(uint64(address) - image.LoadBias)
}

func (image *LoadedImage) ToVirtualAddress(address elf.FileAddress) VirtualAddress {
	return VirtualAddress(uint64(address) + image.LoadBias)
}

// ParseAddress parses a runtime address.  Values prefixed with "elf:" are
// file addresses and are converted using the load bias.
func (image *LoadedImage) ParseAddress(value string) (VirtualAddress, error) {
	if strings.HasPrefix(value, "elf:") {
		addr, err := strconv.ParseUint(value[4:], 0, 64)
		if err != nil {
			return 0, fmt.Errorf(
				"failed to parse elf file address (%s): %w",
				value,
				err)
		}

		return image.ToVirtualAddress(elf.FileAddress(addr)), nil
	}

	addr, err := strconv.ParseUint(value, 0, 64)
	if err != nil {
		return 0, fmt.Errorf(
			"failed to parse virtual address (%s): %w",
			value,
			err)
	}

	return VirtualAddress(addr), nil
}

// EntryPointVirtualAddress is where control should be transferred to.
func (image *LoadedImage) EntryPointVirtualAddress() VirtualAddress {
	return image.ToVirtualAddress(image.EntryPointAddress)
}

func (image *LoadedImage) AddressRange() AddressRange {
	return AddressRange{
		Low:  image.Address,
		High: image.Address + VirtualAddress(len(image.Memory)),
	}
}

// Read copies loaded bytes starting at addr into out.  The read is truncated
// at the end of the loaded region.
func (image *LoadedImage) Read(addr VirtualAddress, out []byte) (int, error) {
	if !image.AddressRange().Contains(addr) {
		return 0, fmt.Errorf(
			"%w: address %s not in loaded image [%s, %s)",
			elf.ErrOutOfBounds,
			addr,
			image.Address,
			image.Address+VirtualAddress(len(image.Memory)))
	}

	return copy(out, image.Memory[addr-image.Address:]), nil
}
