package elf

import (
	"fmt"
)

// Relocations is a single pass sequence over one RELA section's entries.
type Relocations struct {
	records
}

func (relocations *Relocations) Next() (RelocationEntry, bool) {
	record, ok := relocations.nextRecord()
	if !ok {
		return RelocationEntry{}, false
	}

	return decodeRelocationEntry(record), true
}

// Relocations returns the entries of a RELA section.  The number of entries
// is size / entry size; trailing bytes are ignored.
func (image *Image) Relocations(
	header SectionHeaderEntry,
) (
	*Relocations,
	error,
) {
	if header.SectionType != SectionTypeRelocationWithAddends {
		return nil, fmt.Errorf(
			"%w: section is not a relocation with addends section (%s)",
			ErrUnsupportedRelocationType,
			header.SectionType)
	}

	if header.EntrySize != Elf64RelocationEntrySize {
		return nil, fmt.Errorf(
			"%w: unexpected elf64 relocation entry size (%d != %d)",
			ErrUnsupportedRelocationType,
			header.EntrySize,
			Elf64RelocationEntrySize)
	}

	numEntries := header.Size / Elf64RelocationEntrySize
	if !inBounds(
		header.Offset,
		numEntries*Elf64RelocationEntrySize,
		len(image.content)) {

		return nil, fmt.Errorf(
			"%w: out of bound relocation table (%d + %d > %d)",
			ErrTruncatedTable,
			header.Offset,
			header.Size,
			len(image.content))
	}

	return &Relocations{
		records: newRecords(
			image.content,
			header.Offset,
			Elf64RelocationEntrySize,
			numEntries),
	}, nil
}

// Relocator applies base relative addend relocations to a loaded image.
//
// Only one relocation kind is supported: the value load bias + addend is
// written as an 8-byte little endian word at the entry's offset.  The type
// bits of r_info are not consulted: any entry with symbol index 0 is written
// as load bias + addend, including types that are not base relative (e.g.,
// R_X86_64_NONE or R_X86_64_IRELATIVE).  Entries referencing a symbol require
// symbol resolution and are rejected with ErrUnsupportedRelocationType.
//
// Relocate must run after SegmentLoader.Load populated the same destination
// (with the same base); otherwise the loaded segments overwrite the patched
// words.
type Relocator struct {
	image *Image
}

func NewRelocator(image *Image) *Relocator {
	return &Relocator{
		image: image,
	}
}

func (relocator *Relocator) forEachRelocation(
	visit func(SectionHeaderEntry, RelocationEntry) error,
) error {
	headers, err := relocator.image.SectionHeaders()
	if err != nil {
		return err
	}

	for {
		header, ok := headers.Next()
		if !ok {
			return nil
		}

		if header.SectionType != SectionTypeRelocationWithAddends {
			continue
		}

		relocations, err := relocator.image.Relocations(header)
		if err != nil {
			return err
		}

		for {
			entry, ok := relocations.Next()
			if !ok {
				break
			}

			err := visit(header, entry)
			if err != nil {
				return err
			}
		}
	}
}

func (relocator *Relocator) unsupportedSymbolRelocation(
	header SectionHeaderEntry,
	entry RelocationEntry,
) error {
	name := ""
	symbol, err := relocator.image.Symbol(header.Link, entry.SymbolIndex())
	if err == nil {
		name = symbol.PrettyName()
	}

	return fmt.Errorf(
		"%w: relocation at %s (type %d) references symbol %d (%s)",
		ErrUnsupportedRelocationType,
		FileAddress(entry.Offset),
		entry.Type(),
		entry.SymbolIndex(),
		name)
}

func (relocator *Relocator) checkRelocation(
	header SectionHeaderEntry,
	entry RelocationEntry,
	destination []byte,
	base FileAddress,
) error {
	if entry.SymbolIndex() != 0 {
		return relocator.unsupportedSymbolRelocation(header, entry)
	}

	if entry.Offset < uint64(base) ||
		!inBounds(
			entry.Offset-uint64(base),
			RelocationTargetSize,
			len(destination)) {

		return fmt.Errorf(
			"%w: relocation target (%s) outside of destination (%s + %d)",
			ErrOutOfBounds,
			FileAddress(entry.Offset),
			base,
			len(destination))
	}

	return nil
}

// Relocate writes loadBias + addend at destination[offset-base :
// offset-base+8] for every entry of every RELA section.  All entries are
// checked before any byte is written; on error the destination is
// unmodified.
func (relocator *Relocator) Relocate(
	destination []byte,
	base FileAddress,
	loadBias uint64,
) error {
	err := relocator.forEachRelocation(
		func(header SectionHeaderEntry, entry RelocationEntry) error {
			return relocator.checkRelocation(header, entry, destination, base)
		})
	if err != nil {
		return err
	}

	return relocator.forEachRelocation(
		func(header SectionHeaderEntry, entry RelocationEntry) error {
			start := entry.Offset - uint64(base)
			le.PutUint64(
				destination[start:start+RelocationTargetSize],
				loadBias+uint64(entry.Addend))
			return nil
		})
}
