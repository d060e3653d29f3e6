package elf

import (
	"bytes"
	"errors"
	"testing"

	"github.com/pattyshack/gt/testing/expect"
	"github.com/pattyshack/gt/testing/suite"

	"github.com/pattyshack/elfload/elf/elftest"
)

type RelocatorSuite struct{}

func TestRelocator(t *testing.T) {
	suite.RunTests(t, &RelocatorSuite{})
}

const (
	relativeType = 8 // R_X86_64_RELATIVE
)

func (RelocatorSuite) TestRelocateWritesBiasPlusAddend(t *testing.T) {
	content := (&elftest.Builder{
		Sections: []elftest.Section{
			elftest.RelaSection(
				".rela.dyn",
				0,
				elftest.Relocation{Offset: 0x10, Addend: 0x20}),
		},
	}).Build()

	base := uint64(0x7f0000000000)
	destination := make([]byte, 0x18)
	err := NewRelocator(FromBytes(content)).Relocate(destination, 0, base)
	expect.Nil(t, err)

	expected := make([]byte, 8)
	le.PutUint64(expected, base+0x20)
	expect.Equal(t, expected, destination[0x10:0x18])
	expect.Equal(t, make([]byte, 0x10), destination[:0x10])
}

func (RelocatorSuite) TestRelocateRelativeToBase(t *testing.T) {
	content := (&elftest.Builder{
		Sections: []elftest.Section{
			elftest.RelaSection(
				".rela.dyn",
				0,
				elftest.Relocation{
					Offset: 0x400008,
					Type:   relativeType,
					Addend: 0x400100,
				},
				elftest.Relocation{
					Offset: 0x400000,
					Type:   relativeType,
					Addend: -0x10,
				}),
			elftest.RelaSection(
				".rela.plt",
				0,
				elftest.Relocation{
					Offset: 0x400010,
					Type:   relativeType,
					Addend: 1,
				}),
		},
	}).Build()

	destination := make([]byte, 0x18)
	err := NewRelocator(FromBytes(content)).Relocate(
		destination,
		0x400000,
		0x1000)
	expect.Nil(t, err)

	expect.Equal(t, uint64(0x1000-0x10), le.Uint64(destination[0:8]))
	expect.Equal(t, uint64(0x401100), le.Uint64(destination[8:16]))
	expect.Equal(t, uint64(0x1001), le.Uint64(destination[16:24]))
}

func (RelocatorSuite) TestRelocateIgnoresRelocationType(t *testing.T) {
	content := (&elftest.Builder{
		Sections: []elftest.Section{
			elftest.RelaSection(
				".rela.dyn",
				0,
				elftest.Relocation{
					Offset: 0,
					Type:   0, // R_X86_64_NONE
					Addend: 0x10,
				},
				elftest.Relocation{
					Offset: 8,
					Type:   37, // R_X86_64_IRELATIVE
					Addend: 0x20,
				}),
		},
	}).Build()

	destination := make([]byte, 0x10)
	err := NewRelocator(FromBytes(content)).Relocate(destination, 0, 0x1000)
	expect.Nil(t, err)

	expect.Equal(t, uint64(0x1010), le.Uint64(destination[0:8]))
	expect.Equal(t, uint64(0x1020), le.Uint64(destination[8:16]))
}

func (RelocatorSuite) TestRelocateTargetOutOfBound(t *testing.T) {
	content := (&elftest.Builder{
		Sections: []elftest.Section{
			elftest.RelaSection(
				".rela.dyn",
				0,
				elftest.Relocation{Offset: 0, Addend: 1},
				elftest.Relocation{Offset: 0x11, Addend: 2}),
		},
	}).Build()

	destination := make([]byte, 0x18)
	err := NewRelocator(FromBytes(content)).Relocate(destination, 0, 0x1000)
	expect.True(t, errors.Is(err, ErrOutOfBounds))

	// nothing is written when any entry is rejected
	expect.Equal(t, make([]byte, 0x18), destination)

	err = NewRelocator(FromBytes(content)).Relocate(
		make([]byte, 0x100),
		0x8,
		0x1000)
	expect.True(t, errors.Is(err, ErrOutOfBounds))
}

func (RelocatorSuite) TestRelocateOffsetOverflow(t *testing.T) {
	content := (&elftest.Builder{
		Sections: []elftest.Section{
			elftest.RelaSection(
				".rela.dyn",
				0,
				elftest.Relocation{Offset: ^uint64(0) - 3}),
		},
	}).Build()

	err := NewRelocator(FromBytes(content)).Relocate(make([]byte, 0x100), 0, 0)
	expect.True(t, errors.Is(err, ErrOutOfBounds))
}

func (RelocatorSuite) TestRelocateUnexpectedEntrySize(t *testing.T) {
	section := elftest.RelaSection(
		".rela.dyn",
		0,
		elftest.Relocation{Offset: 0})
	section.EntrySize = 16

	content := (&elftest.Builder{
		Sections: []elftest.Section{section},
	}).Build()

	err := NewRelocator(FromBytes(content)).Relocate(make([]byte, 0x100), 0, 0)
	expect.True(t, errors.Is(err, ErrUnsupportedRelocationType))
	expect.Error(t, err, "entry size")
}

func (RelocatorSuite) TestRelocateTruncatedTable(t *testing.T) {
	content := (&elftest.Builder{
		Sections: []elftest.Section{
			{
				Name:      ".rela.dyn",
				Type:      elftest.SectionRela,
				EntrySize: 24,
				Offset:    0x40,
				Size:      24 * 1000,
			},
		},
	}).Build()

	err := NewRelocator(FromBytes(content)).Relocate(make([]byte, 0x100), 0, 0)
	expect.True(t, errors.Is(err, ErrTruncatedTable))
}

func (RelocatorSuite) TestRelocateSymbolReferenceUnsupported(t *testing.T) {
	symtab, strtab := elftest.SymbolTable(
		elftest.SectionIndex(1),
		elftest.Symbol{Name: "_ZN3foo3barEv", Info: 0x12})

	content := (&elftest.Builder{
		Sections: []elftest.Section{
			symtab,
			strtab,
			elftest.RelaSection(
				".rela.dyn",
				elftest.SectionIndex(0),
				elftest.Relocation{Offset: 0, Type: relativeType},
				elftest.Relocation{Offset: 8, Symbol: 1, Type: 6}),
		},
	}).Build()

	destination := make([]byte, 0x10)
	err := NewRelocator(FromBytes(content)).Relocate(destination, 0, 0x1000)
	expect.True(t, errors.Is(err, ErrUnsupportedRelocationType))
	expect.Error(t, err, "foo::bar()")
	expect.Equal(t, make([]byte, 0x10), destination)
}

func (RelocatorSuite) TestRelocateIgnoresOtherSections(t *testing.T) {
	content := (&elftest.Builder{
		Sections: []elftest.Section{
			{
				Name:    ".data",
				Type:    elftest.SectionProgramBits,
				Content: bytes.Repeat([]byte{0xff}, 24),
			},
		},
	}).Build()

	destination := make([]byte, 8)
	err := NewRelocator(FromBytes(content)).Relocate(destination, 0, 0x1000)
	expect.Nil(t, err)
	expect.Equal(t, make([]byte, 8), destination)
}

func (RelocatorSuite) TestRelocations(t *testing.T) {
	content := (&elftest.Builder{
		Sections: []elftest.Section{
			elftest.RelaSection(
				".rela.dyn",
				0,
				elftest.Relocation{
					Offset: 0x10,
					Symbol: 3,
					Type:   relativeType,
					Addend: -4,
				}),
		},
	}).Build()

	image := FromBytes(content)
	header, err := image.SectionHeader(1)
	expect.Nil(t, err)

	relocations, err := image.Relocations(header)
	expect.Nil(t, err)

	entry, ok := relocations.Next()
	expect.True(t, ok)
	expect.Equal(t, uint64(0x10), entry.Offset)
	expect.Equal(t, uint32(3), entry.SymbolIndex())
	expect.Equal(t, uint32(relativeType), entry.Type())
	expect.Equal(t, int64(-4), entry.Addend)

	_, ok = relocations.Next()
	expect.False(t, ok)

	names, err := image.SectionHeader(2)
	expect.Nil(t, err)
	_, err = image.Relocations(names)
	expect.True(t, errors.Is(err, ErrUnsupportedRelocationType))
}

func (RelocatorSuite) TestLoadThenRelocateIsDeterministic(t *testing.T) {
	content := (&elftest.Builder{
		Entry: 0x1000,
		Segments: []elftest.Segment{
			{
				Type:           elftest.ProgramLoadable,
				VirtualAddress: 0x1000,
				MemorySize:     0x40,
				Content:        bytes.Repeat([]byte{0x90}, 0x20),
			},
		},
		Sections: []elftest.Section{
			elftest.RelaSection(
				".rela.dyn",
				0,
				elftest.Relocation{Offset: 0x1008, Addend: 0x1000},
				elftest.Relocation{Offset: 0x1030, Addend: 0x1020}),
		},
	}).Build()

	image := FromBytes(content)

	run := func() []byte {
		loader := NewSegmentLoader(image)
		low, _, err := loader.AddressRange()
		expect.Nil(t, err)
		size, err := loader.RequiredSize()
		expect.Nil(t, err)

		destination := make([]byte, size)
		expect.Nil(t, loader.Load(destination, low))
		expect.Nil(t, NewRelocator(image).Relocate(destination, low, 0xabc000))
		return destination
	}

	first := run()
	second := run()
	expect.Equal(t, first, second)

	expect.Equal(t, uint64(0xabd000), le.Uint64(first[0x8:0x10]))
	expect.Equal(t, uint64(0xabd020), le.Uint64(first[0x30:0x38]))
	expect.Equal(t, byte(0x90), first[0x10])
	expect.Equal(t, byte(0), first[0x20])
}
