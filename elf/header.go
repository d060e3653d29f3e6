// Based on linux's man page, elf.h, golang's debug/elf package,
// and the elf 1.2 spec.
package elf

import (
	"fmt"
)

var (
	// EI_MAG0 - EI_MAG3
	IdentifierMagic = []byte{
		0x7f, // ELFMAG0
		'E',  // ELFMAG1
		'L',  // ELFMAG2
		'F',  // ELFMAG3
	}
)

const (
	Elf64HeaderSize             = 64
	Elf64SectionHeaderEntrySize = 64
	Elf64ProgramHeaderEntrySize = 56
	Elf64SymbolEntrySize        = 24
	Elf64RelocationEntrySize    = 24

	// Size of the value written by a base-relative relocation.
	RelocationTargetSize = 8
)

// Header field offsets.  Only the fields consumed by the loader are listed.
const (
	classOffset                   = 4  // EI_CLASS
	dataEncodingOffset            = 5  // EI_DATA
	entryPointOffset              = 24 // e_entry
	programHeaderOffsetOffset     = 32 // e_phoff
	sectionHeaderOffsetOffset     = 40 // e_shoff
	programHeaderEntrySizeOffset  = 54 // e_phentsize
	numProgramHeaderEntriesOffset = 56 // e_phnum
	sectionHeaderEntrySizeOffset  = 58 // e_shentsize
	numSectionHeaderEntriesOffset = 60 // e_shnum
)

// EI_CLASS
type Class byte

const (
	Class32 = Class(1) // ELFCLASS32
	Class64 = Class(2) // ELFCLASS64
)

func (class Class) String() string {
	switch class {
	case Class32:
		return "Class32"
	case Class64:
		return "Class64"
	default:
		return fmt.Sprintf("ClassUnknown(%d)", class)
	}
}

// EI_DATA
type DataEncoding byte

const (
	DataEncodingTwosComplementLittleEndian = DataEncoding(1) // ELFDATA2LSB
	DataEncodingTwosComplementBigEndian    = DataEncoding(2) // ELFDATA2MSB
)

func (encoding DataEncoding) String() string {
	switch encoding {
	case DataEncodingTwosComplementLittleEndian:
		return "TwosComplementLittleEndian"
	case DataEncodingTwosComplementBigEndian:
		return "TwosComplementBigEndian"
	default:
		return fmt.Sprintf("DataEncodingUnknown(%d)", encoding)
	}
}

// e_type
type FileType uint16

const (
	FileTypeRelocatable  = FileType(1) // ET_REL
	FileTypeExecutable   = FileType(2) // ET_EXEC
	FileTypeSharedObject = FileType(3) // ET_DYN
)

func (ft FileType) String() string {
	switch ft {
	case FileTypeRelocatable:
		return "Relocatable"
	case FileTypeExecutable:
		return "Executable"
	case FileTypeSharedObject:
		return "SharedObject"
	default:
		return fmt.Sprintf("FileTypeUnknown(%d)", ft)
	}
}

// e_machine
// NOTE: golang's debug/elf.Machine defines a more complete list of machine
// types.
type MachineArchitecture uint16

const (
	MachineArchitectureX86_64  = MachineArchitecture(62)  // EM_X86_64
	MachineArchitectureAArch64 = MachineArchitecture(183) // EM_AARCH64
	MachineArchitectureRISCV   = MachineArchitecture(243) // EM_RISCV
)

func (arch MachineArchitecture) String() string {
	switch arch {
	case MachineArchitectureX86_64:
		return "x86-64"
	case MachineArchitectureAArch64:
		return "aarch64"
	case MachineArchitectureRISCV:
		return "riscv"
	default:
		return fmt.Sprintf("MachineArchitectureUnknown(%d)", arch)
	}
}

type ProgramType uint32

// see debug/elf for a more complete list
const (
	ProgramLoadable        = ProgramType(1) // PT_LOAD
	ProgramDynamicLinking  = ProgramType(2) // PT_DYNAMIC
	ProgramInterpreterPath = ProgramType(3) // PT_INTERP
	ProgramNote            = ProgramType(4) // PT_NOTE
)

func (segType ProgramType) String() string {
	switch segType {
	case ProgramLoadable:
		return "Loadable"
	case ProgramDynamicLinking:
		return "DynamicLinking"
	case ProgramInterpreterPath:
		return "InterpreterPath"
	case ProgramNote:
		return "Note"
	default:
		return fmt.Sprintf("ProgramUnknown(%d)", segType)
	}
}

type ProgramFlags uint32

const (
	ProgramFlagExecutableBit = ProgramFlags(0x1)
	ProgramFlagWritableBit   = ProgramFlags(0x2)
	ProgramFlagReadableBit   = ProgramFlags(0x4)
)

func (bits ProgramFlags) String() string {
	if bits > 7 {
		return fmt.Sprintf("%#x", uint32(bits))
	}

	rwx := []byte{'-', '-', '-'}
	if bits&ProgramFlagReadableBit != 0 {
		rwx[0] = 'r'
	}

	if bits&ProgramFlagWritableBit != 0 {
		rwx[1] = 'w'
	}

	if bits&ProgramFlagExecutableBit != 0 {
		rwx[2] = 'x'
	}

	return string(rwx)
}

type SectionType uint32

const (
	SectionTypeNull                  = SectionType(0)  // SHT_NULL
	SectionTypeProgramDefinedInfo    = SectionType(1)  // SHT_PROGBITS
	SectionTypeSymbolTable           = SectionType(2)  // SHT_SYMTAB
	SectionTypeStringTable           = SectionType(3)  // SHT_STRTAB
	SectionTypeRelocationWithAddends = SectionType(4)  // SHT_RELA
	SectionTypeNoSpace               = SectionType(8)  // SHT_NOBITS
	SectionTypeRelocationNoAddends   = SectionType(9)  // SHT_REL
	SectionTypeDynamicSymbolTable    = SectionType(11) // SHT_DYNSYM
)

func (stype SectionType) String() string {
	switch stype {
	case SectionTypeNull:
		return "SectionTypeNull"
	case SectionTypeProgramDefinedInfo:
		return "ProgramDefinedInfo"
	case SectionTypeSymbolTable:
		return "SymbolTable"
	case SectionTypeStringTable:
		return "StringTable"
	case SectionTypeRelocationWithAddends:
		return "RelocationWithAddends"
	case SectionTypeNoSpace:
		return "NoSpace"
	case SectionTypeRelocationNoAddends:
		return "RelocationNoAddends"
	case SectionTypeDynamicSymbolTable:
		return "DynamicSymbolTable"
	default:
		return fmt.Sprintf("SectionTypeUnknown(%d)", stype)
	}
}

type SectionFlags uint64

const (
	SectionContainsWritableData = SectionFlags(0x1)   // SHF_WRITE
	SectionOccupiesMemory       = SectionFlags(0x2)   // SHF_ALLOC
	SectionContainsInstructions = SectionFlags(0x4)   // SHF_EXECINSTR
	SectionMayBeMerged          = SectionFlags(0x10)  // SHF_MERGE
	SectionContainsStrings      = SectionFlags(0x20)  // SHF_STRINGS
	SectionInfoHoldsIndex       = SectionFlags(0x40)  // SHF_INFO_LINK
	SectionContainsTLSData      = SectionFlags(0x400) // SHF_TLS
)

func (flags SectionFlags) String() string {
	result := []byte{'-', '-', '-', '-', '-', '-', '-'}

	if flags&SectionContainsWritableData != 0 {
		result[0] = 'w'
	}
	if flags&SectionOccupiesMemory != 0 {
		result[1] = 'a'
	}
	if flags&SectionContainsInstructions != 0 {
		result[2] = 'x'
	}
	if flags&SectionMayBeMerged != 0 {
		result[3] = 'm'
	}
	if flags&SectionContainsStrings != 0 {
		result[4] = 's'
	}
	if flags&SectionInfoHoldsIndex != 0 {
		result[5] = 'i'
	}
	if flags&SectionContainsTLSData != 0 {
		result[6] = 't'
	}

	return string(result)
}

type SectionIndex uint16

const (
	SectionIndexUndefined = SectionIndex(0) // SHN_UNDEF
)

// Record structs matching c's elf64 definitions.  These are always decoded
// field by field (see record.go); they are never overlaid on raw bytes.

// e_ident
type Identifier struct {
	Magic              [4]byte // EI_MAG0 ... EI_MAG3
	Class                      // EI_CLASS
	DataEncoding               // EI_DATA
	IdentifierVersion  byte    // EI_VERSION
	OperatingSystemABI byte    // EI_OSABI
	ABIVersion         byte    // EI_ABIVERSION
}

// Elf64_Ehdr
type ElfHeader struct {
	Identifier                           // e_ident[EI_NIDENT]
	FileType                             // e_type
	MachineArchitecture                  // e_machine
	FormatVersion           uint32       // e_version
	EntryPointAddress       uint64       // e_entry
	ProgramHeaderOffset     uint64       // e_phoff
	SectionHeaderOffset     uint64       // e_shoff
	ArchitectureFlags       uint32       // e_flags
	ElfHeaderSize           uint16       // e_ehsize
	ProgramHeaderEntrySize  uint16       // e_phentsize
	NumProgramHeaderEntries uint16       // e_phnum
	SectionHeaderEntrySize  uint16       // e_shentsize
	NumSectionHeaderEntries uint16       // e_shnum
	SectionStringTableIndex SectionIndex // e_shstrndx
}

// Elf64_Phdr
type ProgramHeaderEntry struct {
	ProgramType            // p_type
	ProgramFlags           // p_flags
	ContentOffset   uint64 // p_offset
	VirtualAddress  uint64 // p_vaddr
	PhysicalAddress uint64 // p_paddr
	FileImageSize   uint64 // p_filesz
	MemoryImageSize uint64 // p_memsz
	Alignment       uint64 // p_align
}

// Elf64_Shdr
type SectionHeaderEntry struct {
	NameIndex        uint32 // sh_name
	SectionType             // sh_type
	SectionFlags            // sh_flags
	Address          uint64 // sh_addr
	Offset           uint64 // sh_offset
	Size             uint64 // sh_size
	Link             uint32 // sh_link
	Info             uint32 // sh_info
	AddressAlignment uint64 // sh_addralign
	EntrySize        uint64 // sh_entsize
}

// Elf64_Sym
type SymbolEntry struct {
	NameIndex    uint32 // st_name
	Info         byte   // st_info.  (4 bits st_bind, 4 bits st_type)
	Other        byte   // st_other
	SectionIndex        // st_shndx
	Value        uint64 // st_value
	Size         uint64 // st_size
}

// Elf64_Rela
type RelocationEntry struct {
	Offset uint64 // r_offset
	Info   uint64 // r_info.  (32 bits symbol index, 32 bits type)
	Addend int64  // r_addend
}

func (entry RelocationEntry) SymbolIndex() uint32 {
	return uint32(entry.Info >> 32)
}

func (entry RelocationEntry) Type() uint32 {
	return uint32(entry.Info)
}
