package main

import (
	"fmt"
	"strconv"

	"github.com/pattyshack/elfload"
	"github.com/pattyshack/elfload/elf"
	"github.com/pattyshack/elfload/inspect"
)

type command struct {
	name string
	run  func(*elfload.LoadedImage, []string) error
}

var (
	commands = []command{
		{
			name: "entry",
			run:  printEntry,
		},
		{
			name: "segments",
			run:  printSegments,
		},
		{
			name: "sections",
			run:  printSections,
		},
		{
			name: "disassemble",
			run:  disassemble,
		},
		{
			name: "dump",
			run:  dump,
		},
	}
)

func parseCount(args []string, idx int, defaultValue int) (int, error) {
	if len(args) <= idx {
		return defaultValue, nil
	}

	count, err := strconv.Atoi(args[idx])
	if err != nil {
		return 0, fmt.Errorf("invalid count (%s): %w", args[idx], err)
	}

	return count, nil
}

func printDisassembly(
	loaded *elfload.LoadedImage,
	address elfload.VirtualAddress,
	numInstructions int,
) error {
	if !isX86_64(loaded) {
		fmt.Println("disassembly is only supported for x86-64")
		return nil
	}

	insts, err := inspect.NewDisassembler(loaded).Disassemble(
		address,
		numInstructions)
	if err != nil {
		return err
	}

	for _, inst := range insts {
		fmt.Println(" ", inst)
	}

	return nil
}

// entry [<num instructions>]
func printEntry(loaded *elfload.LoadedImage, args []string) error {
	numInstructions, err := parseCount(args, 0, 8)
	if err != nil {
		return err
	}

	fmt.Printf(
		"loaded %d bytes at %s (base: %s load bias: %#x)\n",
		len(loaded.Memory),
		loaded.Address,
		loaded.Base,
		loaded.LoadBias)

	entry := loaded.EntryPointVirtualAddress()
	fmt.Printf("entry point: %s (elf: %s)\n", entry, loaded.EntryPointAddress)

	if !loaded.AddressRange().Contains(entry) {
		fmt.Println("entry point is outside of the loaded image")
		return nil
	}

	return printDisassembly(loaded, entry, numInstructions)
}

func printSegments(loaded *elfload.LoadedImage, args []string) error {
	headers, err := loaded.ProgramHeaders()
	if err != nil {
		return err
	}

	for idx := 0; ; idx++ {
		header, ok := headers.Next()
		if !ok {
			return nil
		}

		if header.ProgramType != elf.ProgramLoadable {
			fmt.Printf("  [%d] %s\n", idx, header.ProgramType)
			continue
		}

		start := loaded.ToVirtualAddress(elf.FileAddress(header.VirtualAddress))
		fmt.Printf(
			"  [%d] %s %s [%s, %s) filesz=%#x\n",
			idx,
			header.ProgramType,
			header.ProgramFlags,
			start,
			start+elfload.VirtualAddress(header.MemoryImageSize),
			header.FileImageSize)
	}
}

func printSections(loaded *elfload.LoadedImage, args []string) error {
	headers, err := loaded.SectionHeaders()
	if err != nil {
		return err
	}

	for idx := 0; ; idx++ {
		header, ok := headers.Next()
		if !ok {
			return nil
		}

		address := "-"
		if header.SectionFlags&elf.SectionOccupiesMemory != 0 {
			address = loaded.ToVirtualAddress(
				elf.FileAddress(header.Address)).String()
		}

		fmt.Printf(
			"  [%d] %s: %s %s %s size=%#x\n",
			idx,
			loaded.SectionName(header),
			header.SectionType,
			header.SectionFlags,
			address,
			header.Size)
	}
}

// disassemble [<address> [<num instructions>]]
func disassemble(loaded *elfload.LoadedImage, args []string) error {
	address := loaded.EntryPointVirtualAddress()
	if len(args) > 0 {
		var err error
		address, err = loaded.ParseAddress(args[0])
		if err != nil {
			return err
		}
	}

	numInstructions, err := parseCount(args, 1, 8)
	if err != nil {
		return err
	}

	return printDisassembly(loaded, address, numInstructions)
}

// dump <address> [<num bytes>]
func dump(loaded *elfload.LoadedImage, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: dump <address> [<num bytes>]")
	}

	address, err := loaded.ParseAddress(args[0])
	if err != nil {
		return err
	}

	size, err := parseCount(args, 1, 64)
	if err != nil {
		return err
	}

	out, err := inspect.Dump(loaded, address, size)
	if err != nil {
		return err
	}

	fmt.Print(out)
	return nil
}
