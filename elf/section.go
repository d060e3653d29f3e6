package elf

import (
	"bytes"
	"fmt"

	"github.com/ianlancetaylor/demangle"
)

// SectionContent returns the section's bytes within the image.  NOBITS
// sections occupy no file space and have no content.
func (image *Image) SectionContent(header SectionHeaderEntry) ([]byte, error) {
	if header.SectionType == SectionTypeNoSpace {
		return nil, nil
	}

	if !inBounds(header.Offset, header.Size, len(image.content)) {
		return nil, fmt.Errorf(
			"%w: section content (%d + %d > %d)",
			ErrOutOfBounds,
			header.Offset,
			header.Size,
			len(image.content))
	}

	return image.content[header.Offset : header.Offset+header.Size], nil
}

type StringTable []byte

// Get returns the null terminated string starting at index, or "" when the
// index is out of bound or the string is unterminated.
func (table StringTable) Get(index uint32) string {
	if index >= uint32(len(table)) {
		return ""
	}

	chunk := table[index:]
	end := bytes.IndexByte(chunk, 0)
	if end == -1 {
		return ""
	}

	return string(chunk[:end])
}

func (table StringTable) NumEntries() int {
	if len(table) == 0 {
		return 0
	}

	count := 0
	for _, b := range table[1:] {
		if b == 0 {
			count += 1
		}
	}
	return count
}

func (image *Image) stringTable(idx uint32) (StringTable, error) {
	header, err := image.SectionHeader(idx)
	if err != nil {
		return nil, err
	}

	if header.SectionType != SectionTypeStringTable {
		return nil, fmt.Errorf(
			"section (%d) is not a string table (%s)",
			idx,
			header.SectionType)
	}

	content, err := image.SectionContent(header)
	if err != nil {
		return nil, err
	}

	return StringTable(content), nil
}

// SectionName resolves the section's name through the section name string
// table (e_shstrndx).  Returns "" when the name cannot be resolved.
func (image *Image) SectionName(header SectionHeaderEntry) string {
	hdr, err := image.Header()
	if err != nil {
		return ""
	}

	if hdr.SectionStringTableIndex == SectionIndexUndefined {
		return ""
	}

	table, err := image.stringTable(uint32(hdr.SectionStringTableIndex))
	if err != nil {
		return ""
	}

	return table.Get(header.NameIndex)
}

// The bottom 4 bits of st_info
type SymbolType byte

const (
	SymbolTypeNone     = SymbolType(0) // STT_NOTYPE
	SymbolTypeObject   = SymbolType(1) // STT_OBJECT
	SymbolTypeFunction = SymbolType(2) // STT_FUNC
	SymbolTypeSection  = SymbolType(3) // STT_SECTION
)

func (st SymbolType) String() string {
	switch st {
	case SymbolTypeNone:
		return "NoType"
	case SymbolTypeObject:
		return "Object"
	case SymbolTypeFunction:
		return "Function"
	case SymbolTypeSection:
		return "Section"
	default:
		return fmt.Sprintf("SymbolTypeUnknown(%d)", st)
	}
}

type Symbol struct {
	SymbolEntry

	Name          string
	DemangledName string // human readable c++ / rust name
}

func (symbol Symbol) PrettyName() string {
	if symbol.DemangledName != "" {
		return symbol.DemangledName
	}

	return symbol.Name
}

func (symbol Symbol) Type() SymbolType {
	return SymbolType(symbol.Info & 0xf)
}

// Symbol decodes the idx-th entry of the symbol table section at
// symbolTableIdx, and resolves its name through the table's linked string
// table.
func (image *Image) Symbol(symbolTableIdx uint32, idx uint32) (Symbol, error) {
	header, err := image.SectionHeader(symbolTableIdx)
	if err != nil {
		return Symbol{}, err
	}

	if header.SectionType != SectionTypeSymbolTable &&
		header.SectionType != SectionTypeDynamicSymbolTable {

		return Symbol{}, fmt.Errorf(
			"section (%d) is not a symbol table (%s)",
			symbolTableIdx,
			header.SectionType)
	}

	content, err := image.SectionContent(header)
	if err != nil {
		return Symbol{}, err
	}

	start := uint64(idx) * Elf64SymbolEntrySize
	if !inBounds(start, Elf64SymbolEntrySize, len(content)) {
		return Symbol{}, fmt.Errorf(
			"%w: symbol index (%d) in section (%d)",
			ErrOutOfBounds,
			idx,
			symbolTableIdx)
	}

	symbol := Symbol{
		SymbolEntry: decodeSymbolEntry(
			content[start : start+Elf64SymbolEntrySize]),
	}

	names, err := image.stringTable(header.Link)
	if err != nil {
		// Unnamed symbol.  The entry itself is still valid.
		return symbol, nil
	}

	symbol.Name = names.Get(symbol.NameIndex)
	val, err := demangle.ToString(symbol.Name)
	if err == nil {
		symbol.DemangledName = val
	}

	return symbol, nil
}
