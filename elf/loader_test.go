package elf

import (
	"bytes"
	"errors"
	"testing"

	"github.com/pattyshack/gt/testing/expect"
	"github.com/pattyshack/gt/testing/suite"

	"github.com/pattyshack/elfload/elf/elftest"
)

type SegmentLoaderSuite struct{}

func TestSegmentLoader(t *testing.T) {
	suite.RunTests(t, &SegmentLoaderSuite{})
}

func twoSegmentImage() []byte {
	return (&elftest.Builder{
		Entry: 0x1000,
		Segments: []elftest.Segment{
			{
				Type:           elftest.ProgramLoadable,
				Flags:          5,
				VirtualAddress: 0x1000,
				MemorySize:     6,
				Content:        []byte("code"),
			},
			{
				Type:           elftest.ProgramNote,
				VirtualAddress: 0x9000,
				MemorySize:     0x1000,
				Content:        []byte("note"),
			},
			{
				Type:           elftest.ProgramLoadable,
				Flags:          6,
				VirtualAddress: 0x3000,
				MemorySize:     0x10,
				Content:        []byte("data"),
			},
		},
	}).Build()
}

func (SegmentLoaderSuite) TestAddressRange(t *testing.T) {
	loader := NewSegmentLoader(FromBytes(twoSegmentImage()))

	low, high, err := loader.AddressRange()
	expect.Nil(t, err)
	expect.Equal(t, FileAddress(0x1000), low)
	expect.Equal(t, FileAddress(0x3010), high)

	size, err := loader.RequiredSize()
	expect.Nil(t, err)
	expect.Equal(t, uint64(0x2010), size)
}

func (SegmentLoaderSuite) TestNoLoadableSegment(t *testing.T) {
	loader := NewSegmentLoader(FromBytes((&elftest.Builder{}).Build()))

	size, err := loader.RequiredSize()
	expect.Nil(t, err)
	expect.Equal(t, uint64(0), size)

	expect.Nil(t, loader.Load(nil, 0))
}

func (SegmentLoaderSuite) TestAddressRangeOverflow(t *testing.T) {
	content := (&elftest.Builder{
		Segments: []elftest.Segment{
			{
				Type:           elftest.ProgramLoadable,
				VirtualAddress: ^uint64(0) - 1,
				MemorySize:     2,
			},
		},
	}).Build()

	_, err := NewSegmentLoader(FromBytes(content)).RequiredSize()
	expect.True(t, errors.Is(err, ErrOutOfBounds))
}

func (SegmentLoaderSuite) TestLoadCopiesFileImageAndZeroFillsBss(t *testing.T) {
	buf := make([]byte, 64+56)
	copy(buf, rawHeader())
	le.PutUint64(buf[32:], 64)
	le.PutUint16(buf[54:], 56)
	le.PutUint16(buf[56:], 1)
	elftest.PutProgramHeader(
		buf[64:],
		elftest.Segment{
			Type:           elftest.ProgramLoadable,
			Offset:         0,
			VirtualAddress: 0x1000,
			FileSize:       4,
			MemorySize:     8,
		})
	copy(buf, []byte{1, 2, 3, 4})

	source := bytes.Clone(buf)

	destination := make([]byte, 0x1008)
	err := NewSegmentLoader(FromBytes(buf)).Load(destination, 0)
	expect.Nil(t, err)
	expect.Equal(t, []byte{1, 2, 3, 4}, destination[0x1000:0x1004])
	expect.Equal(t, []byte{0, 0, 0, 0}, destination[0x1004:0x1008])
	expect.Equal(t, make([]byte, 0x1000), destination[:0x1000])

	// source is untouched
	expect.Equal(t, source, buf)
}

func (SegmentLoaderSuite) TestLoadZeroFillsDirtyDestination(t *testing.T) {
	content := twoSegmentImage()
	loader := NewSegmentLoader(FromBytes(content))

	low, _, err := loader.AddressRange()
	expect.Nil(t, err)
	size, err := loader.RequiredSize()
	expect.Nil(t, err)

	destination := bytes.Repeat([]byte{0xaa}, int(size))
	err = loader.Load(destination, low)
	expect.Nil(t, err)

	expect.Equal(t, []byte("code\x00\x00"), destination[0:6])
	expect.Equal(t, byte(0xaa), destination[6])
	expect.Equal(t, []byte("data"), destination[0x2000:0x2004])
	expect.Equal(t, make([]byte, 12), destination[0x2004:0x2010])
}

func (SegmentLoaderSuite) TestLoadDestinationTooSmall(t *testing.T) {
	loader := NewSegmentLoader(FromBytes(twoSegmentImage()))

	destination := bytes.Repeat([]byte{0xaa}, 0x200f)
	err := loader.Load(destination, 0x1000)
	expect.True(t, errors.Is(err, ErrOutOfBounds))
	expect.Error(t, err, "exceeds destination")

	// nothing is written when any segment is rejected
	expect.Equal(t, bytes.Repeat([]byte{0xaa}, 0x200f), destination)
}

func (SegmentLoaderSuite) TestLoadSegmentBelowBase(t *testing.T) {
	loader := NewSegmentLoader(FromBytes(twoSegmentImage()))

	err := loader.Load(make([]byte, 0x10000), 0x2000)
	expect.True(t, errors.Is(err, ErrOutOfBounds))
	expect.Error(t, err, "below destination base")
}

func (SegmentLoaderSuite) TestLoadFileImagePastEndOfFile(t *testing.T) {
	content := (&elftest.Builder{
		Segments: []elftest.Segment{
			{
				Type:           elftest.ProgramLoadable,
				VirtualAddress: 0,
				Offset:         0x40,
				FileSize:       0x1000,
				MemorySize:     0x1000,
			},
		},
	}).Build()

	err := NewSegmentLoader(FromBytes(content)).Load(make([]byte, 0x1000), 0)
	expect.True(t, errors.Is(err, ErrOutOfBounds))
	expect.Error(t, err, "segment file image")
}

func (SegmentLoaderSuite) TestLoadFileImageLargerThanMemoryImage(t *testing.T) {
	content := (&elftest.Builder{
		Segments: []elftest.Segment{
			{
				Type:           elftest.ProgramLoadable,
				VirtualAddress: 0,
				MemorySize:     2,
				Content:        []byte("four"),
			},
		},
	}).Build()

	err := NewSegmentLoader(FromBytes(content)).Load(make([]byte, 0x10), 0)
	expect.True(t, errors.Is(err, ErrOutOfBounds))
	expect.Error(t, err, "larger than memory image")
}

func (SegmentLoaderSuite) TestLoadIgnoresNonLoadableSegments(t *testing.T) {
	loader := NewSegmentLoader(FromBytes(twoSegmentImage()))

	// The note segment at 0x9000 would not fit.
	destination := make([]byte, 0x3010)
	expect.Nil(t, loader.Load(destination, 0))
	expect.Equal(t, []byte("code"), destination[0x1000:0x1004])
}

func (SegmentLoaderSuite) TestLoadTruncatedProgramHeaderTable(t *testing.T) {
	content := twoSegmentImage()
	le.PutUint16(content[56:], 0xffff)

	err := NewSegmentLoader(FromBytes(content)).Load(make([]byte, 0x4000), 0)
	expect.True(t, errors.Is(err, ErrTruncatedTable))
}
