package cmd

import (
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sergev/cyton/config"
	"github.com/sergev/cyton/cyton"
	"github.com/spf13/cobra"
)

var board *cyton.Device

// Flags shared by all commands
var (
	portFlag  string
	debugFlag bool
)

var rootCmd = &cobra.Command{
	Use:   "cyton",
	Short: "A CLI program which records EEG data from an OpenBCI Cyton board",
	Long:  "The cyton tool is a CLI program which records EEG data from an OpenBCI Cyton board via USB dongle.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		prepare()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if board != nil {
			if err := board.Disconnect(); err != nil {
				log.Warn().Err(err).Msg("disconnect failed")
			}
		}
	},
}

// prepare loads the configuration and connects to the board
func prepare() {
	setup()
	connect()
}

// connect opens the board selected by the configuration
func connect() {
	var err error
	board, err = connectBoard()
	if err != nil {
		cobra.CheckErr(err)
	}
	fmt.Printf("OpenBCI connection established on %s\n", board.Port())
}

// setup loads the configuration and initializes logging
func setup() {
	err := config.Initialize()
	if err != nil {
		cobra.CheckErr(fmt.Errorf("failed to initialize config: %w", err))
	}

	level := zerolog.WarnLevel
	if debugFlag || config.Debug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})
}

// connectBoard creates the board client from the configuration,
// connects to it and applies the configured channel settings.
func connectBoard() (*cyton.Device, error) {
	d, err := cyton.New(cyton.Config{
		Channels: config.Channels,
		Daisy:    config.Daisy,
		BaudRate: config.BaudRate,
		Timeout:  config.Timeout,
	})
	if err != nil {
		return nil, err
	}

	// Command line port overrides the config file
	port := config.Port
	if portFlag != "" {
		port = portFlag
	}
	if port != "" {
		if err := d.SetEndpoint(port); err != nil {
			return nil, err
		}
	}

	if err := d.Connect(); err != nil {
		return nil, err
	}
	if err := applySettings(d); err != nil {
		d.Disconnect()
		return nil, err
	}
	return d, nil
}

// applySettings sends channel settings from the config file to the board.
// Channel settings power a channel on, so gain is set on active
// channels only and disabled channels are turned off last.
func applySettings(d *cyton.Device) error {
	if config.Gain != 0 {
		for ch := 1; ch <= d.Channels(); ch++ {
			if slices.Contains(config.Disabled, ch) {
				continue
			}
			if err := d.SetGain(ch, config.Gain); err != nil {
				return fmt.Errorf("failed to set gain of channel %d: %w", ch, err)
			}
		}
	}
	if len(config.Disabled) > 0 {
		if err := d.DeactivateChannels(config.Disabled...); err != nil {
			return fmt.Errorf("failed to disable channels: %w", err)
		}
	}
	if config.Timestamps {
		if err := d.SetTimestamps(true); err != nil {
			return fmt.Errorf("failed to enable timestamps: %w", err)
		}
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&portFlag, "port", "p", "", "serial port of the USB dongle (default: auto-detect)")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "print diagnostic messages")
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}
