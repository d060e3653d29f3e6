package main

import (
	"flag"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/pattyshack/elfload/elf"
)

type programHeaderReport struct {
	Type            string `yaml:"type"`
	Flags           string `yaml:"flags"`
	Offset          uint64 `yaml:"offset"`
	VirtualAddress  string `yaml:"virtual_address"`
	FileImageSize   uint64 `yaml:"file_size"`
	MemoryImageSize uint64 `yaml:"memory_size"`
	Alignment       uint64 `yaml:"alignment"`
}

type sectionReport struct {
	Name           string `yaml:"name"`
	Type           string `yaml:"type"`
	Flags          string `yaml:"flags"`
	Address        string `yaml:"address"`
	Offset         uint64 `yaml:"offset"`
	Size           uint64 `yaml:"size"`
	Link           uint32 `yaml:"link"`
	Info           uint32 `yaml:"info"`
	EntrySize      uint64 `yaml:"entry_size"`
	NumRelocations int    `yaml:"num_relocations,omitempty"`
}

type report struct {
	FileType       string                `yaml:"file_type"`
	Machine        string                `yaml:"machine"`
	EntryPoint     string                `yaml:"entry_point"`
	ProgramHeaders elf.HeaderTable       `yaml:"program_header_table"`
	SectionHeaders elf.HeaderTable       `yaml:"section_header_table"`
	RequiredSize   uint64                `yaml:"required_size"`
	Segments       []programHeaderReport `yaml:"segments"`
	Sections       []sectionReport       `yaml:"sections"`
}

func buildReport(image *elf.Image) (*report, error) {
	hdr, err := image.Header()
	if err != nil {
		return nil, err
	}

	phTable, err := image.ProgramHeaderTable()
	if err != nil {
		return nil, err
	}

	shTable, err := image.SectionHeaderTable()
	if err != nil {
		return nil, err
	}

	size, err := elf.NewSegmentLoader(image).RequiredSize()
	if err != nil {
		return nil, err
	}

	result := &report{
		FileType:       hdr.FileType.String(),
		Machine:        hdr.MachineArchitecture.String(),
		EntryPoint:     elf.FileAddress(hdr.EntryPointAddress).String(),
		ProgramHeaders: phTable,
		SectionHeaders: shTable,
		RequiredSize:   size,
	}

	programHeaders, err := image.ProgramHeaders()
	if err != nil {
		return nil, err
	}

	for {
		header, ok := programHeaders.Next()
		if !ok {
			break
		}

		result.Segments = append(
			result.Segments,
			programHeaderReport{
				Type:            header.ProgramType.String(),
				Flags:           header.ProgramFlags.String(),
				Offset:          header.ContentOffset,
				VirtualAddress:  elf.FileAddress(header.VirtualAddress).String(),
				FileImageSize:   header.FileImageSize,
				MemoryImageSize: header.MemoryImageSize,
				Alignment:       header.Alignment,
			})
	}

	sectionHeaders, err := image.SectionHeaders()
	if err != nil {
		return nil, err
	}

	for {
		header, ok := sectionHeaders.Next()
		if !ok {
			break
		}

		section := sectionReport{
			Name:      image.SectionName(header),
			Type:      header.SectionType.String(),
			Flags:     header.SectionFlags.String(),
			Address:   elf.FileAddress(header.Address).String(),
			Offset:    header.Offset,
			Size:      header.Size,
			Link:      header.Link,
			Info:      header.Info,
			EntrySize: header.EntrySize,
		}

		if header.SectionType == elf.SectionTypeRelocationWithAddends {
			relocations, err := image.Relocations(header)
			if err != nil {
				return nil, err
			}
			section.NumRelocations = relocations.Remaining()
		}

		result.Sections = append(result.Sections, section)
	}

	return result, nil
}

func printText(r *report) {
	fmt.Printf("Type: %s Machine: %s Entry: %s\n", r.FileType, r.Machine, r.EntryPoint)
	fmt.Println("Program header table:", r.ProgramHeaders)
	fmt.Println("Section header table:", r.SectionHeaders)
	fmt.Printf("Required size: %#x\n", r.RequiredSize)

	fmt.Println("Program headers:", len(r.Segments))
	for idx, seg := range r.Segments {
		fmt.Printf(
			"  [%d] %s %s offset=%#x vaddr=%s filesz=%#x memsz=%#x align=%#x\n",
			idx,
			seg.Type,
			seg.Flags,
			seg.Offset,
			seg.VirtualAddress,
			seg.FileImageSize,
			seg.MemoryImageSize,
			seg.Alignment)
	}

	fmt.Println("Sections:", len(r.Sections))
	for idx, section := range r.Sections {
		fmt.Printf(
			"  [%d] %s: %s %s addr=%s offset=%#x size=%#x\n",
			idx,
			section.Name,
			section.Type,
			section.Flags,
			section.Address,
			section.Offset,
			section.Size)
		if section.NumRelocations > 0 {
			fmt.Printf("    Number of relocations: %d\n", section.NumRelocations)
		}
	}
}

func main() {
	asYaml := false
	flag.BoolVar(&asYaml, "yaml", false, "print the report as yaml")

	flag.Parse()
	args := flag.Args()

	if len(args) != 1 {
		fmt.Println("USAGE: print-elf [-yaml] <file>")
		os.Exit(1)
	}

	content, err := os.ReadFile(args[0])
	if err != nil {
		panic(err)
	}

	image := elf.FromBytes(content)
	err = image.Validate()
	if err != nil {
		panic(err)
	}

	r, err := buildReport(image)
	if err != nil {
		panic(err)
	}

	if !asYaml {
		printText(r)
		return
	}

	out, err := yaml.Marshal(r)
	if err != nil {
		panic(err)
	}

	fmt.Print(string(out))
}
