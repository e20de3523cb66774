// Command emulator runs a TI-99/4A cartridge image against the SDL2
// reference host sink (framebuffer + audio queue).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ti99sim/ti99sim-go/internal/cartridge"
	"github.com/ti99sim/ti99sim-go/internal/config"
	"github.com/ti99sim/ti99sim-go/internal/debug"
	"github.com/ti99sim/ti99sim-go/internal/emulator"
	hostsdl "github.com/ti99sim/ti99sim-go/internal/hostsink/sdl"
)

func main() {
	cfg := config.Default()
	var verbosity int
	var pal bool
	var dsk1, dsk2, dsk3 string
	var systemROMPath, cartridgePath string

	root := &cobra.Command{
		Use:   "emulator <system-rom> <cartridge>",
		Short: "run a TI-99/4A cartridge image",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			systemROMPath, cartridgePath = args[0], args[1]
			cfg.PAL = pal
			cfg.Verbosity = verbosity
			for n, path := range []string{dsk1, dsk2, dsk3} {
				if path != "" {
					_ = cfg.SetDiskImage(n+1, path)
				}
			}
			return run(systemROMPath, cartridgePath, cfg)
		},
	}
	root.Flags().BoolVar(&pal, "PAL", false, "use PAL timing (50Hz/313 lines)")
	root.Flags().Bool("NTSC", true, "use NTSC timing (60Hz/262 lines, default)")
	root.Flags().StringVar(&dsk1, "dsk1", "", "disk image for drive 1")
	root.Flags().StringVar(&dsk2, "dsk2", "", "disk image for drive 2")
	root.Flags().StringVar(&dsk3, "dsk3", "", "disk image for drive 3")
	root.Flags().IntVarP(&verbosity, "verbosity", "v", 0, "trace verbosity level")
	root.Flags().Lookup("verbosity").NoOptDefVal = "1"

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(-1)
	}
}

func run(systemROMPath, cartridgePath string, cfg config.Config) error {
	systemROM, err := os.ReadFile(systemROMPath)
	if err != nil {
		return fmt.Errorf("emulator: reading system ROM: %w", err)
	}
	cart, err := cartridge.Load(cartridgePath)
	if err != nil {
		return fmt.Errorf("emulator: loading cartridge: %w", err)
	}

	logger := debug.NewLogger(10000)
	logger.SetMinLevel(verbosityToLevel(cfg.Verbosity))
	emu := emulator.NewEmulatorWithLogger(logger)
	emu.PAL = cfg.PAL
	if err := emu.LoadSystemROM(systemROM); err != nil {
		return err
	}
	if err := emu.LoadCartridge(cart); err != nil {
		return err
	}
	emu.Reset()
	emu.Start()

	sink, err := hostsdl.Open("ti99sim-go")
	if err != nil {
		return fmt.Errorf("emulator: opening display: %w", err)
	}
	defer sink.Close()

	for {
		if sink.PollQuit() {
			return nil
		}
		if err := emu.RunFrame(); err != nil {
			return fmt.Errorf("emulator: run frame: %w", err)
		}
		if err := sink.Present(emu, emu); err != nil {
			return fmt.Errorf("emulator: present frame: %w", err)
		}
	}
}

// verbosityToLevel maps the -v[=N] count onto the logger's severity scale:
// 0 keeps only errors/warnings, higher values progressively unlock info,
// debug, and per-instruction trace logging.
func verbosityToLevel(v int) debug.LogLevel {
	switch {
	case v <= 0:
		return debug.LogLevelWarning
	case v == 1:
		return debug.LogLevelInfo
	case v == 2:
		return debug.LogLevelDebug
	default:
		return debug.LogLevelTrace
	}
}
