// Command speechbuild assembles a line-oriented speech .dat file into a
// 32 KiB TMS5220 VSM ROM image.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ti99sim/ti99sim-go/internal/speech"
)

func main() {
	var outPath string
	var verbose bool

	root := &cobra.Command{
		Use:   "speechbuild <input.dat>",
		Short: "build a TMS5220 VSM ROM from a speech data file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(args[0], outPath, verbose)
		},
	}
	root.Flags().StringVarP(&outPath, "output", "o", "", "output VSM file (default: input with .bin extension)")
	root.Flags().BoolVarP(&verbose, "verbose", "v", false, "print each phrase as it is assembled")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(-1)
	}
}

func run(inPath, outPath string, verbose bool) error {
	f, err := os.Open(inPath)
	if err != nil {
		return fmt.Errorf("speechbuild: opening %s: %w", inPath, err)
	}
	defer f.Close()

	nodes, err := speech.ParseDatFile(f)
	if err != nil {
		return fmt.Errorf("speechbuild: parsing %s: %w", inPath, err)
	}
	if verbose {
		fmt.Fprintf(os.Stderr, "speechbuild: parsed %d phrases from %s\n", len(nodes), inPath)
	}

	rom, err := speech.BuildROM(nodes)
	if err != nil {
		return fmt.Errorf("speechbuild: assembling ROM: %w", err)
	}

	if outPath == "" {
		outPath = defaultOutputPath(inPath)
	}
	if err := os.WriteFile(outPath, rom, 0o644); err != nil {
		return fmt.Errorf("speechbuild: writing %s: %w", outPath, err)
	}
	if verbose {
		fmt.Fprintf(os.Stderr, "speechbuild: wrote %d bytes to %s\n", len(rom), outPath)
	}
	return nil
}

func defaultOutputPath(inPath string) string {
	for i := len(inPath) - 1; i >= 0 && inPath[i] != '/'; i-- {
		if inPath[i] == '.' {
			return inPath[:i] + ".bin"
		}
	}
	return inPath + ".bin"
}
