package inspect

import (
	"fmt"

	"golang.org/x/arch/x86/x86asm"

	"github.com/pattyshack/elfload"
)

const (
	maxX64InstructionLength = 15
)

type Memory interface {
	Read(addr elfload.VirtualAddress, out []byte) (int, error)
}

type DisassembledInstruction struct {
	Address elfload.VirtualAddress
	x86asm.Inst
}

func (inst DisassembledInstruction) String() string {
	return fmt.Sprintf(
		"0x%016x: %s",
		uint64(inst.Address),
		x86asm.GNUSyntax(inst.Inst, uint64(inst.Address), nil))
}

// Disassembler decodes x86-64 instructions from loaded memory.
type Disassembler struct {
	memory Memory
}

func NewDisassembler(memory Memory) *Disassembler {
	return &Disassembler{
		memory: memory,
	}
}

// Disassemble decodes up to numInstructions instructions starting at
// startAddress.  Decoding stops early at the end of readable memory or at the
// first undecodable byte sequence.
func (disassembler *Disassembler) Disassemble(
	startAddress elfload.VirtualAddress,
	numInstructions int,
) (
	[]DisassembledInstruction,
	error,
) {
	if numInstructions < 0 {
		return nil, fmt.Errorf(
			"invalid number of instructions to disassemble: %d",
			numInstructions)
	} else if numInstructions == 0 {
		return nil, nil
	}

	data := make([]byte, numInstructions*maxX64InstructionLength)
	n, err := disassembler.memory.Read(startAddress, data)
	if err != nil {
		return nil, err
	}
	data = data[:n]

	address := startAddress
	result := make([]DisassembledInstruction, 0, numInstructions)
	for len(data) > 0 && len(result) < numInstructions {
		inst, err := x86asm.Decode(data, 64)
		if err != nil {
			break
		}

		result = append(
			result,
			DisassembledInstruction{
				Address: address,
				Inst:    inst,
			})

		data = data[inst.Len:]
		address += elfload.VirtualAddress(inst.Len)
	}

	return result, nil
}
