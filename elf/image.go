package elf

import (
	"bytes"
	"fmt"
)

// Resources:
// https://refspecs.linuxfoundation.org/

// Link-time address as recorded in the elf file (p_vaddr, sh_addr, r_offset,
// e_entry).
type FileAddress uint64

func (addr FileAddress) String() string {
	return fmt.Sprintf("0x%016x", uint64(addr))
}

// Image is a read-only view over an in-memory elf64 little endian image.
//
// The image borrows content; it never copies or mutates it.  The caller must
// not modify content while the image, or any header sequence obtained from
// it, is in use.  Nothing is cached: every accessor re-decodes from content.
type Image struct {
	content []byte
}

// FromBytes wraps content.  No validation is performed; see Validate.
func FromBytes(content []byte) *Image {
	return &Image{
		content: content,
	}
}

func (image *Image) Content() []byte {
	return image.content
}

func (image *Image) Len() int {
	return len(image.content)
}

// IsValid only checks the magic number.
func (image *Image) IsValid() bool {
	return len(image.content) >= len(IdentifierMagic) &&
		bytes.Equal(image.content[:len(IdentifierMagic)], IdentifierMagic)
}

// Validate checks that the image has a complete elf64 header with the elf
// magic, class 64 and little endian data encoding.  The remaining accessors
// are only meaningful after Validate succeeds.
func (image *Image) Validate() error {
	if !image.IsValid() {
		return ErrInvalidMagic
	}

	if len(image.content) < Elf64HeaderSize {
		return fmt.Errorf(
			"%w (%d < %d)",
			ErrTruncatedHeader,
			len(image.content),
			Elf64HeaderSize)
	}

	class := Class(image.content[classOffset])
	if class != Class64 {
		return fmt.Errorf("%w: %s", ErrUnsupportedClassOrEncoding, class)
	}

	encoding := DataEncoding(image.content[dataEncodingOffset])
	if encoding != DataEncodingTwosComplementLittleEndian {
		return fmt.Errorf("%w: %s", ErrUnsupportedClassOrEncoding, encoding)
	}

	return nil
}

// header returns the fixed size header region.  No header field is read from
// a buffer shorter than the full elf64 header.
func (image *Image) header() ([]byte, error) {
	if len(image.content) < Elf64HeaderSize {
		return nil, fmt.Errorf(
			"%w (%d < %d)",
			ErrTruncatedHeader,
			len(image.content),
			Elf64HeaderSize)
	}

	return image.content[:Elf64HeaderSize], nil
}

func (image *Image) Header() (ElfHeader, error) {
	hdr, err := image.header()
	if err != nil {
		return ElfHeader{}, err
	}

	return decodeElfHeader(hdr), nil
}

func (image *Image) EntryPoint() (FileAddress, error) {
	hdr, err := image.header()
	if err != nil {
		return 0, err
	}

	return FileAddress(le.Uint64(hdr[entryPointOffset:])), nil
}

// HeaderTable describes the location of the program or section header table.
type HeaderTable struct {
	Offset     uint64
	EntrySize  uint16
	NumEntries uint16
}

func (table HeaderTable) Size() uint64 {
	return uint64(table.EntrySize) * uint64(table.NumEntries)
}

func (table HeaderTable) String() string {
	return fmt.Sprintf(
		"{offset: %d entry size: %d entries: %d}",
		table.Offset,
		table.EntrySize,
		table.NumEntries)
}

func (image *Image) headerTable(
	name string,
	offsetOffset int,
	entrySizeOffset int,
	numEntriesOffset int,
	expectedEntrySize uint16,
) (
	HeaderTable,
	error,
) {
	hdr, err := image.header()
	if err != nil {
		return HeaderTable{}, err
	}

	table := HeaderTable{
		Offset:     le.Uint64(hdr[offsetOffset:]),
		EntrySize:  le.Uint16(hdr[entrySizeOffset:]),
		NumEntries: le.Uint16(hdr[numEntriesOffset:]),
	}

	// An empty table's entry size carries no meaning.
	if table.NumEntries == 0 {
		return table, nil
	}

	if table.EntrySize != expectedEntrySize {
		return HeaderTable{}, fmt.Errorf(
			"%w: unexpected elf64 %s header entry size (%d != %d)",
			ErrTruncatedTable,
			name,
			table.EntrySize,
			expectedEntrySize)
	}

	if !inBounds(table.Offset, table.Size(), len(image.content)) {
		return HeaderTable{}, fmt.Errorf(
			"%w: out of bound %s header table (%d + %d > %d)",
			ErrTruncatedTable,
			name,
			table.Offset,
			table.Size(),
			len(image.content))
	}

	return table, nil
}

func (image *Image) ProgramHeaderTable() (HeaderTable, error) {
	return image.headerTable(
		"program",
		programHeaderOffsetOffset,
		programHeaderEntrySizeOffset,
		numProgramHeaderEntriesOffset,
		Elf64ProgramHeaderEntrySize)
}

func (image *Image) SectionHeaderTable() (HeaderTable, error) {
	return image.headerTable(
		"section",
		sectionHeaderOffsetOffset,
		sectionHeaderEntrySizeOffset,
		numSectionHeaderEntriesOffset,
		Elf64SectionHeaderEntrySize)
}

// records iterates over fixed size records in a bounds checked region.
type records struct {
	content    []byte
	entrySize  uint64
	numEntries uint64
	next       uint64
}

func (r *records) nextRecord() ([]byte, bool) {
	if r.next >= r.numEntries {
		return nil, false
	}

	start := r.next * r.entrySize
	r.next++
	return r.content[start : start+r.entrySize], true
}

func (r *records) Remaining() int {
	return int(r.numEntries - r.next)
}

func newRecords(
	content []byte,
	offset uint64,
	entrySize uint64,
	numEntries uint64,
) records {
	if numEntries == 0 {
		return records{}
	}

	return records{
		content:    content[offset : offset+entrySize*numEntries],
		entrySize:  entrySize,
		numEntries: numEntries,
	}
}

// ProgramHeaders is a single pass sequence over the program header table.
type ProgramHeaders struct {
	records
}

func (headers *ProgramHeaders) Next() (ProgramHeaderEntry, bool) {
	record, ok := headers.nextRecord()
	if !ok {
		return ProgramHeaderEntry{}, false
	}

	return decodeProgramHeaderEntry(record), true
}

func (image *Image) ProgramHeaders() (*ProgramHeaders, error) {
	table, err := image.ProgramHeaderTable()
	if err != nil {
		return nil, err
	}

	return &ProgramHeaders{
		records: newRecords(
			image.content,
			table.Offset,
			Elf64ProgramHeaderEntrySize,
			uint64(table.NumEntries)),
	}, nil
}

// SectionHeaders is a single pass sequence over the section header table.
type SectionHeaders struct {
	records
}

func (headers *SectionHeaders) Next() (SectionHeaderEntry, bool) {
	record, ok := headers.nextRecord()
	if !ok {
		return SectionHeaderEntry{}, false
	}

	return decodeSectionHeaderEntry(record), true
}

func (image *Image) SectionHeaders() (*SectionHeaders, error) {
	table, err := image.SectionHeaderTable()
	if err != nil {
		return nil, err
	}

	return &SectionHeaders{
		records: newRecords(
			image.content,
			table.Offset,
			Elf64SectionHeaderEntrySize,
			uint64(table.NumEntries)),
	}, nil
}

// SectionHeader returns the idx-th section header.
func (image *Image) SectionHeader(idx uint32) (SectionHeaderEntry, error) {
	table, err := image.SectionHeaderTable()
	if err != nil {
		return SectionHeaderEntry{}, err
	}

	if idx >= uint32(table.NumEntries) {
		return SectionHeaderEntry{}, fmt.Errorf(
			"%w: section index (%d >= %d)",
			ErrOutOfBounds,
			idx,
			table.NumEntries)
	}

	start := table.Offset + uint64(idx)*Elf64SectionHeaderEntrySize
	return decodeSectionHeaderEntry(
		image.content[start : start+Elf64SectionHeaderEntrySize]), nil
}
