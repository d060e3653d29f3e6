// Package elftest builds small elf64 little endian images in memory.
//
// NOTE: this package must not import the elf package since elf's internal
// tests depend on it.
package elftest

import (
	"encoding/binary"
)

const (
	headerSize        = 64
	programHeaderSize = 56
	sectionHeaderSize = 64
	symbolSize        = 24
	relocationSize    = 24

	ProgramLoadable = 1 // PT_LOAD
	ProgramNote     = 4 // PT_NOTE

	SectionProgramBits = 1 // SHT_PROGBITS
	SectionSymbolTable = 2 // SHT_SYMTAB
	SectionStringTable = 3 // SHT_STRTAB
	SectionRela        = 4 // SHT_RELA
	SectionNoBits      = 8 // SHT_NOBITS

	SectionAlloc = 0x2 // SHF_ALLOC

	MachineX86_64 = 62
	FileTypeDyn   = 3
)

var le = binary.LittleEndian

type Segment struct {
	Type           uint32
	Flags          uint32
	VirtualAddress uint64
	MemorySize     uint64
	Align          uint64

	// When Content is non-nil, it is placed in the file and Offset / FileSize
	// are computed.  Otherwise Offset / FileSize are encoded as is.
	Content  []byte
	Offset   uint64
	FileSize uint64
}

type Section struct {
	Name      string
	Type      uint32
	Flags     uint64
	Address   uint64
	Link      uint32
	Info      uint32
	Align     uint64
	EntrySize uint64

	// When Content is non-nil, it is placed in the file and Offset / Size are
	// computed.  Otherwise Offset / Size are encoded as is.
	Content []byte
	Offset  uint64
	Size    uint64
}

type Builder struct {
	Entry    uint64
	Machine  uint16
	FileType uint16

	Segments []Segment

	// Index 0 is the null section; user sections start at index 1, followed
	// by the section name string table.
	Sections []Section
}

// SectionIndex returns the section header index of b.Sections[i].
func SectionIndex(i int) uint32 {
	return uint32(i + 1)
}

func align8(buf []byte) []byte {
	for len(buf)%8 != 0 {
		buf = append(buf, 0)
	}
	return buf
}

func (b *Builder) Build() []byte {
	machine := b.Machine
	if machine == 0 {
		machine = MachineX86_64
	}

	fileType := b.FileType
	if fileType == 0 {
		fileType = FileTypeDyn
	}

	buf := make([]byte, headerSize+programHeaderSize*len(b.Segments))

	segments := make([]Segment, len(b.Segments))
	copy(segments, b.Segments)
	for i, seg := range segments {
		if seg.Content == nil {
			continue
		}

		buf = align8(buf)
		segments[i].Offset = uint64(len(buf))
		segments[i].FileSize = uint64(len(seg.Content))
		buf = append(buf, seg.Content...)
	}

	sections := make([]Section, 0, len(b.Sections)+2)
	sections = append(sections, Section{})
	sections = append(sections, b.Sections...)

	names := []byte{0}
	nameIndices := make([]uint32, len(sections)+1)
	for i, section := range sections {
		if section.Name == "" {
			continue
		}
		nameIndices[i] = uint32(len(names))
		names = append(names, section.Name...)
		names = append(names, 0)
	}
	nameIndices[len(sections)] = uint32(len(names))
	names = append(names, ".shstrtab"...)
	names = append(names, 0)

	sections = append(
		sections,
		Section{
			Type:    SectionStringTable,
			Content: names,
		})

	for i, section := range sections {
		if i == 0 || section.Content == nil {
			continue
		}

		buf = align8(buf)
		sections[i].Offset = uint64(len(buf))
		sections[i].Size = uint64(len(section.Content))
		buf = append(buf, section.Content...)
	}

	buf = align8(buf)
	sectionHeaderOffset := uint64(len(buf))
	buf = append(buf, make([]byte, sectionHeaderSize*len(sections))...)

	copy(buf, []byte{0x7f, 'E', 'L', 'F', 2, 1, 1})
	le.PutUint16(buf[16:], fileType)
	le.PutUint16(buf[18:], machine)
	le.PutUint32(buf[20:], 1)
	le.PutUint64(buf[24:], b.Entry)
	le.PutUint64(buf[32:], headerSize)
	le.PutUint64(buf[40:], sectionHeaderOffset)
	le.PutUint16(buf[52:], headerSize)
	le.PutUint16(buf[54:], programHeaderSize)
	le.PutUint16(buf[56:], uint16(len(segments)))
	le.PutUint16(buf[58:], sectionHeaderSize)
	le.PutUint16(buf[60:], uint16(len(sections)))
	le.PutUint16(buf[62:], uint16(len(sections)-1))

	for i, seg := range segments {
		PutProgramHeader(buf[headerSize+i*programHeaderSize:], seg)
	}

	for i, section := range sections {
		start := sectionHeaderOffset + uint64(i*sectionHeaderSize)
		PutSectionHeader(buf[start:], nameIndices[i], section)
	}

	return buf
}

func PutProgramHeader(buf []byte, seg Segment) {
	le.PutUint32(buf[0:], seg.Type)
	le.PutUint32(buf[4:], seg.Flags)
	le.PutUint64(buf[8:], seg.Offset)
	le.PutUint64(buf[16:], seg.VirtualAddress)
	le.PutUint64(buf[24:], seg.VirtualAddress)
	le.PutUint64(buf[32:], seg.FileSize)
	le.PutUint64(buf[40:], seg.MemorySize)
	le.PutUint64(buf[48:], seg.Align)
}

func PutSectionHeader(buf []byte, nameIndex uint32, section Section) {
	le.PutUint32(buf[0:], nameIndex)
	le.PutUint32(buf[4:], section.Type)
	le.PutUint64(buf[8:], section.Flags)
	le.PutUint64(buf[16:], section.Address)
	le.PutUint64(buf[24:], section.Offset)
	le.PutUint64(buf[32:], section.Size)
	le.PutUint32(buf[40:], section.Link)
	le.PutUint32(buf[44:], section.Info)
	le.PutUint64(buf[48:], section.Align)
	le.PutUint64(buf[56:], section.EntrySize)
}

type Relocation struct {
	Offset uint64
	Symbol uint32
	Type   uint32
	Addend int64
}

// RelaSection encodes relocations as a SHT_RELA section linked to the symbol
// table section at symbolTableIdx (0 for none).
func RelaSection(
	name string,
	symbolTableIdx uint32,
	relocations ...Relocation,
) Section {
	content := make([]byte, relocationSize*len(relocations))
	for i, reloc := range relocations {
		entry := content[i*relocationSize:]
		le.PutUint64(entry[0:], reloc.Offset)
		le.PutUint64(entry[8:], uint64(reloc.Symbol)<<32|uint64(reloc.Type))
		le.PutUint64(entry[16:], uint64(reloc.Addend))
	}

	return Section{
		Name:      name,
		Type:      SectionRela,
		Flags:     SectionAlloc,
		Link:      symbolTableIdx,
		Align:     8,
		EntrySize: relocationSize,
		Content:   content,
	}
}

type Symbol struct {
	Name  string
	Info  byte
	Value uint64
	Size  uint64
}

// SymbolTable encodes a SHT_SYMTAB section and its string table.  The symbol
// table links to the string table at stringTableIdx.  Symbol index 0 is the
// undefined symbol; symbols[i] is at index i+1.
func SymbolTable(
	stringTableIdx uint32,
	symbols ...Symbol,
) (
	Section,
	Section,
) {
	names := []byte{0}
	content := make([]byte, symbolSize*(len(symbols)+1))
	for i, sym := range symbols {
		entry := content[(i+1)*symbolSize:]
		le.PutUint32(entry[0:], uint32(len(names)))
		entry[4] = sym.Info
		le.PutUint64(entry[8:], sym.Value)
		le.PutUint64(entry[16:], sym.Size)

		names = append(names, sym.Name...)
		names = append(names, 0)
	}

	symtab := Section{
		Name:      ".symtab",
		Type:      SectionSymbolTable,
		Link:      stringTableIdx,
		Align:     8,
		EntrySize: symbolSize,
		Content:   content,
	}

	strtab := Section{
		Name:    ".strtab",
		Type:    SectionStringTable,
		Content: names,
	}

	return symtab, strtab
}
