// Package config parses tapedeck's command-line surface (spec §6) with
// cobra, backed by an optional ~/.config/tapedeck/config.toml file read
// through viper for the handful of settings worth persisting (default
// backend, default volume, mpris name suffix), the same cobra+viper
// split Alexander-D-Karpov/amp's internal/config uses. Flags always win
// over the config file, which wins over the built-in defaults.
package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tapedeck/tapedeck/internal/types"
)

// Version is stamped at build time via -ldflags; "dev" otherwise.
var Version = "dev"

// Backend names the CLI's --sndio/--alsa/--pipewire/--coreaudio flags
// accept (spec §6). tapedeck only builds PortAudio and beep sinks, so
// sndio/alsa/pipewire/coreaudio are all routed through whichever of those
// two the build supports; the flag only picks which *name* the user
// asked for, so an unsupported one still fails per spec §7 "Backend not
// available".
type Backend string

const (
	BackendAuto     Backend = ""
	BackendSndio    Backend = "sndio"
	BackendAlsa     Backend = "alsa"
	BackendPipewire Backend = "pipewire"
	BackendCoreaudio Backend = "coreaudio"
)

// Config is the fully-resolved set of startup parameters (spec §6's CLI
// table plus the config-file-only defaults).
type Config struct {
	Paths             []string
	Volume            float64
	NoImage           bool
	Backend           Backend
	LogLevel          int // -1..3: none/error/warn/info/debug
	ForceLoggerColors bool
	MPRISName         string
}

// ErrShowHelp and ErrShowVersion let main distinguish "print and exit 0"
// from a real argument error (spec §6 exit codes: 0 vs 1).
var (
	ErrShowHelp    = fmt.Errorf("config: help requested")
	ErrShowVersion = fmt.Errorf("config: version requested")
)

// Parse builds the cobra command tree, binds it to viper, reads
// ~/.config/tapedeck/config.toml if present, and returns the resolved
// Config. Input paths come from positional args and, when stdin is a
// pipe, one path per line (spec §6).
func Parse(args []string) (*Config, error) {
	cfg := &Config{Volume: 1.0, MPRISName: "tapedeck"}
	var backendFlag string
	var showVersion bool

	root := &cobra.Command{
		Use:           "tapedeck [paths...]",
		Short:         "A terminal audio player",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, positional []string) error {
			if showVersion {
				return ErrShowVersion
			}

			paths := append([]string(nil), positional...)
			stdinPaths, err := readStdinPaths()
			if err != nil {
				return err
			}
			cfg.Paths = append(paths, stdinPaths...)

			if backendFlag != "" {
				cfg.Backend = Backend(backendFlag)
				if !cfg.Backend.valid() {
					return fmt.Errorf("config: unknown backend %q", backendFlag)
				}
			}

			if cfg.Volume < 0 || cfg.Volume > types.MaxVolume {
				clamped := cfg.Volume
				if clamped < 0 {
					clamped = 0
				}
				if clamped > types.MaxVolume {
					clamped = types.MaxVolume
				}
				fmt.Fprintf(os.Stderr, "warning: --volume %.2f clamped to %.2f\n", cfg.Volume, clamped)
				cfg.Volume = clamped
			}
			return nil
		},
	}

	flags := root.Flags()
	flags.Float64Var(&cfg.Volume, "volume", 1.0, "startup volume, clamped to [0, MaxVolume]")
	flags.BoolVar(&cfg.NoImage, "no-image", false, "disable cover rendering")
	flags.StringVar(&backendFlag, "sndio", "", "")
	flags.Lookup("sndio").NoOptDefVal = "sndio"
	flags.StringVar(&backendFlag, "alsa", "", "")
	flags.Lookup("alsa").NoOptDefVal = "alsa"
	flags.StringVar(&backendFlag, "pipewire", "", "")
	flags.Lookup("pipewire").NoOptDefVal = "pipewire"
	flags.StringVar(&backendFlag, "coreaudio", "", "")
	flags.Lookup("coreaudio").NoOptDefVal = "coreaudio"
	flags.IntVarP(&cfg.LogLevel, "logs", "l", 2, "log level in {-1,0,1,2,3} = none/error/warn/info/debug")
	flags.BoolVar(&cfg.ForceLoggerColors, "forceLoggerColors", false, "force ANSI colors in log output")
	flags.StringVar(&cfg.MPRISName, "mpris-name", "tapedeck", "suffix for the media-control bus name")
	flags.BoolVarP(&showVersion, "version", "v", false, "print version and exit")

	// Audio-backend selection is really one flag with four spellings
	// (spec §6), so mark each mutually exclusive of the others.
	root.MarkFlagsMutuallyExclusive("sndio", "alsa", "pipewire", "coreaudio")

	bindViperDefaults(root, cfg)

	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		return nil, err
	}
	// cobra prints usage for -h/--help and returns nil without running RunE.
	if help, _ := root.Flags().GetBool("help"); help {
		return nil, ErrShowHelp
	}
	return cfg, nil
}

func (b Backend) valid() bool {
	switch b {
	case BackendSndio, BackendAlsa, BackendPipewire, BackendCoreaudio:
		return true
	}
	return false
}

// bindViperDefaults reads ~/.config/tapedeck/config.toml, if present, and
// applies its values as the *default* volume/backend/mpris-name — lower
// priority than any flag the user actually typed. cobra/pflag only
// exposes "was this flag set" via Changed, so defaults are applied once
// flags are parsed, by checking Changed on each relevant flag inside
// PreRunE (which Execute runs before RunE).
func bindViperDefaults(root *cobra.Command, cfg *Config) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")

	if dir, err := os.UserConfigDir(); err == nil {
		v.AddConfigPath(filepath.Join(dir, "tapedeck"))
	}

	v.SetDefault("volume", 1.0)
	v.SetDefault("backend", "")
	v.SetDefault("mpris_name", "tapedeck")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintf(os.Stderr, "warning: reading config file: %v\n", err)
		}
		return
	}

	prev := root.PreRunE
	root.PreRunE = func(cmd *cobra.Command, args []string) error {
		if !cmd.Flags().Changed("volume") {
			cfg.Volume = v.GetFloat64("volume")
		}
		if !cmd.Flags().Changed("mpris-name") {
			cfg.MPRISName = v.GetString("mpris_name")
		}
		if backend := v.GetString("backend"); backend != "" &&
			!cmd.Flags().Changed("sndio") && !cmd.Flags().Changed("alsa") &&
			!cmd.Flags().Changed("pipewire") && !cmd.Flags().Changed("coreaudio") {
			cfg.Backend = Backend(backend)
		}
		if prev != nil {
			return prev(cmd, args)
		}
		return nil
	}
}

// readStdinPaths reads one path per line from stdin when stdin is a pipe
// (spec §6: "Input paths may also be supplied on stdin ... when stdin is
// a pipe").
func readStdinPaths() ([]string, error) {
	stat, err := os.Stdin.Stat()
	if err != nil || (stat.Mode()&os.ModeCharDevice) != 0 {
		return nil, nil
	}

	var paths []string
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if line != "" {
			paths = append(paths, line)
		}
	}
	return paths, scanner.Err()
}
