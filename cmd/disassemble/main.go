// Command disassemble prints a TMS9900 disassembly of a raw binary image
// over an address range.
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ti99sim/ti99sim-go/internal/cpu"
)

func main() {
	var rangeFlag string

	root := &cobra.Command{
		Use:   "disassemble <image>",
		Short: "disassemble a TMS9900 binary image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(args[0], rangeFlag)
		},
	}
	root.Flags().StringVar(&rangeFlag, "range", "", "address range to disassemble, LO-HI in hex (default: whole image)")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(-1)
	}
}

func run(path, rangeFlag string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("disassemble: reading image: %w", err)
	}

	lo, hi := 0, len(data)
	if rangeFlag != "" {
		lo, hi, err = parseRange(rangeFlag, len(data))
		if err != nil {
			return err
		}
	}

	for pc := lo; pc < hi; {
		text, n := cpu.Disassemble(uint16(pc), data)
		fmt.Printf("%04X  %s\n", pc, text)
		pc += n
	}
	return nil
}

func parseRange(s string, imageLen int) (lo, hi int, err error) {
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("disassemble: --range must be LO-HI, got %q", s)
	}
	lo64, err := strconv.ParseInt(parts[0], 16, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("disassemble: invalid range start %q: %w", parts[0], err)
	}
	hi64, err := strconv.ParseInt(parts[1], 16, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("disassemble: invalid range end %q: %w", parts[1], err)
	}
	lo, hi = int(lo64), int(hi64)
	if lo < 0 || hi > imageLen || lo >= hi {
		return 0, 0, fmt.Errorf("disassemble: range %04X-%04X out of bounds for a %d-byte image", lo, hi, imageLen)
	}
	return lo, hi, nil
}
