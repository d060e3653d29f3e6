package elf

import (
	"encoding/binary"
)

// Record decoders.  Every multi-byte field is extracted with an explicit
// little endian read at its documented offset since on-disk records are not
// guaranteed to be naturally aligned.  Callers must bounds check the record
// before decoding.

var le = binary.LittleEndian

func decodeElfHeader(record []byte) ElfHeader {
	if len(record) < Elf64HeaderSize {
		panic("should never happen")
	}

	hdr := ElfHeader{
		Identifier: Identifier{
			Class:              Class(record[classOffset]),
			DataEncoding:       DataEncoding(record[dataEncodingOffset]),
			IdentifierVersion:  record[6],
			OperatingSystemABI: record[7],
			ABIVersion:         record[8],
		},
		FileType:                FileType(le.Uint16(record[16:18])),
		MachineArchitecture:     MachineArchitecture(le.Uint16(record[18:20])),
		FormatVersion:           le.Uint32(record[20:24]),
		EntryPointAddress:       le.Uint64(record[24:32]),
		ProgramHeaderOffset:     le.Uint64(record[32:40]),
		SectionHeaderOffset:     le.Uint64(record[40:48]),
		ArchitectureFlags:       le.Uint32(record[48:52]),
		ElfHeaderSize:           le.Uint16(record[52:54]),
		ProgramHeaderEntrySize:  le.Uint16(record[54:56]),
		NumProgramHeaderEntries: le.Uint16(record[56:58]),
		SectionHeaderEntrySize:  le.Uint16(record[58:60]),
		NumSectionHeaderEntries: le.Uint16(record[60:62]),
		SectionStringTableIndex: SectionIndex(le.Uint16(record[62:64])),
	}
	copy(hdr.Magic[:], record[:4])

	return hdr
}

func decodeProgramHeaderEntry(record []byte) ProgramHeaderEntry {
	if len(record) != Elf64ProgramHeaderEntrySize {
		panic("should never happen")
	}

	return ProgramHeaderEntry{
		ProgramType:     ProgramType(le.Uint32(record[0:4])),
		ProgramFlags:    ProgramFlags(le.Uint32(record[4:8])),
		ContentOffset:   le.Uint64(record[8:16]),
		VirtualAddress:  le.Uint64(record[16:24]),
		PhysicalAddress: le.Uint64(record[24:32]),
		FileImageSize:   le.Uint64(record[32:40]),
		MemoryImageSize: le.Uint64(record[40:48]),
		Alignment:       le.Uint64(record[48:56]),
	}
}

func decodeSectionHeaderEntry(record []byte) SectionHeaderEntry {
	if len(record) != Elf64SectionHeaderEntrySize {
		panic("should never happen")
	}

	return SectionHeaderEntry{
		NameIndex:        le.Uint32(record[0:4]),
		SectionType:      SectionType(le.Uint32(record[4:8])),
		SectionFlags:     SectionFlags(le.Uint64(record[8:16])),
		Address:          le.Uint64(record[16:24]),
		Offset:           le.Uint64(record[24:32]),
		Size:             le.Uint64(record[32:40]),
		Link:             le.Uint32(record[40:44]),
		Info:             le.Uint32(record[44:48]),
		AddressAlignment: le.Uint64(record[48:56]),
		EntrySize:        le.Uint64(record[56:64]),
	}
}

func decodeSymbolEntry(record []byte) SymbolEntry {
	if len(record) != Elf64SymbolEntrySize {
		panic("should never happen")
	}

	return SymbolEntry{
		NameIndex:    le.Uint32(record[0:4]),
		Info:         record[4],
		Other:        record[5],
		SectionIndex: SectionIndex(le.Uint16(record[6:8])),
		Value:        le.Uint64(record[8:16]),
		Size:         le.Uint64(record[16:24]),
	}
}

func decodeRelocationEntry(record []byte) RelocationEntry {
	if len(record) != Elf64RelocationEntrySize {
		panic("should never happen")
	}

	return RelocationEntry{
		Offset: le.Uint64(record[0:8]),
		Info:   le.Uint64(record[8:16]),
		Addend: int64(le.Uint64(record[16:24])),
	}
}
