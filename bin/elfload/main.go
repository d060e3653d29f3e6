package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"

	"github.com/pattyshack/elfload"
	"github.com/pattyshack/elfload/elf"
)

func main() {
	interactive := false
	flag.BoolVar(&interactive, "i", false, "start an interactive inspection prompt")

	numInstructions := 0
	flag.IntVar(
		&numInstructions,
		"n",
		8,
		"number of instructions to disassemble at the entry point")

	flag.Parse()
	args := flag.Args()

	if len(args) != 1 {
		fmt.Println("USAGE: elfload [-i] [-n <num instructions>] <file>")
		os.Exit(1)
	}

	content, err := os.ReadFile(args[0])
	if err != nil {
		panic(err)
	}

	loaded, err := elfload.LoadImage(content, elfload.MmapAllocator{})
	if err != nil {
		fmt.Println("failed to load", args[0]+":", err)
		os.Exit(1)
	}

	defer func() {
		err := loaded.Close()
		if err != nil {
			panic(err)
		}
	}()

	err = printEntry(loaded, []string{fmt.Sprintf("%d", numInstructions)})
	if err != nil {
		panic(err)
	}

	if !interactive {
		return
	}

	rl, err := readline.New("elfload > ")
	if err != nil {
		panic(err)
	}
	defer rl.Close()

	lastLine := ""
	for {
		line, err := rl.Readline()
		if err != nil {
			if err == io.EOF || err == readline.ErrInterrupt {
				break
			}
			panic(err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			line = lastLine
		}
		lastLine = line

		if line == "" {
			continue
		}

		args := strings.Fields(line)

		found := false
		for _, cmd := range commands {
			if strings.HasPrefix(cmd.name, args[0]) {
				found = true
				err := cmd.run(loaded, args[1:])
				if err != nil {
					fmt.Println("error:", err)
				}
				break
			}
		}

		if !found {
			fmt.Println("invalid command:", args[0])
		}
	}
}

func isX86_64(loaded *elfload.LoadedImage) bool {
	hdr, err := loaded.Header()
	return err == nil &&
		hdr.MachineArchitecture == elf.MachineArchitectureX86_64
}
