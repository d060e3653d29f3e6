package inspect

import (
	"fmt"
	"strings"

	"github.com/pattyshack/elfload"
)

const (
	bytesPerLine = 16
)

// Dump formats size bytes starting at addr, 16 bytes per line, each line
// prefixed with its address.
func Dump(
	memory Memory,
	addr elfload.VirtualAddress,
	size int,
) (
	string,
	error,
) {
	if size < 0 {
		return "", fmt.Errorf("invalid dump size: %d", size)
	}

	data := make([]byte, size)
	n, err := memory.Read(addr, data)
	if err != nil {
		return "", err
	}
	data = data[:n]

	builder := &strings.Builder{}
	for len(data) > 0 {
		line := data
		if len(line) > bytesPerLine {
			line = line[:bytesPerLine]
		}

		fmt.Fprintf(builder, "%s:", addr)
		for _, b := range line {
			fmt.Fprintf(builder, " %02x", b)
		}
		builder.WriteString("\n")

		data = data[len(line):]
		addr += elfload.VirtualAddress(len(line))
	}

	return builder.String(), nil
}
