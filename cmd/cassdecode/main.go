// Command cassdecode demodulates a WAV recording of a TI-99/4A cassette
// tape into a flat data file, recovering records via the Miller/Biphase-Mark
// track protocol's primary/secondary redundancy.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ti99sim/ti99sim-go/internal/cassette"
)

func main() {
	var verbosity int

	root := &cobra.Command{
		Use:   "cassdecode <input.wav> <output.bin>",
		Short: "demodulate a TI-99/4A cassette WAV recording",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(args[0], args[1], verbosity)
		},
	}
	root.Flags().IntVarP(&verbosity, "verbosity", "v", 0, "progress verbosity level")
	root.Flags().Lookup("verbosity").NoOptDefVal = "1"

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(-1)
	}
}

func run(inPath, outPath string, verbosity int) error {
	data, err := os.ReadFile(inPath)
	if err != nil {
		return fmt.Errorf("cassdecode: reading %s: %w", inPath, err)
	}

	tape, err := cassette.Load(data)
	if err != nil {
		return fmt.Errorf("cassdecode: parsing WAV: %w", err)
	}

	samples := tape.Samples()
	sections := cassette.LocateTracks(samples)

	isTerminal := term.IsTerminal(int(os.Stdout.Fd()))

	var allChunks []cassette.Chunk
	for i, sec := range sections {
		bits := cassette.ExtractBits(samples, sec)
		chunks, err := cassette.DecodeTrack(bits)
		if err != nil {
			return fmt.Errorf("cassdecode: decoding track %d: %w", i, err)
		}
		allChunks = append(allChunks, chunks...)

		if verbosity > 0 {
			progress := cassette.Progress(chunks)
			if isTerminal {
				fmt.Printf("\rtrack %d: %s", i, progress)
			} else {
				fmt.Printf("track %d: %s\n", i, progress)
			}
		}
	}
	if verbosity > 0 && isTerminal {
		fmt.Println()
	}

	out := cassette.Flatten(allChunks)
	if err := os.WriteFile(outPath, out, 0o644); err != nil {
		return fmt.Errorf("cassdecode: writing %s: %w", outPath, err)
	}
	fmt.Printf("cassdecode: wrote %d bytes from %d chunk(s) across %d track(s)\n", len(out), len(allChunks), len(sections))
	return nil
}
