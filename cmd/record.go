package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/sergev/cyton/config"
	"github.com/sergev/cyton/cyton"
	"github.com/spf13/cobra"
)

var (
	recordSeconds int
	recordEager   bool
)

var recordCmd = &cobra.Command{
	Use:   "record [FILE]",
	Short: "Record EEG samples to a text file",
	Long: `Record EEG samples to a text file.
Without --duration the recording runs until Enter is pressed.
When FILE is omitted, the name is recording_YYYYmmdd-HH-MM-SS.txt.
Files ending in .zst are written zstd-compressed.`,
	Args: cobra.MaximumNArgs(1),
	// Check flags before the board is opened
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if _, err := recordDuration(recordSeconds); err != nil {
			return err
		}
		prepare()
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		if board == nil {
			cobra.CheckErr(fmt.Errorf("board not available"))
		}

		// Determine output filename
		filename := defaultFilename(time.Now())
		if len(args) > 0 {
			filename = args[0]
		}

		duration, err := recordDuration(recordSeconds)
		if err != nil {
			cobra.CheckErr(err)
		}

		sink, err := openSink(filename)
		if err != nil {
			cobra.CheckErr(err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		r := board.NewRecorder()
		r.Settle = config.Settle
		r.Session.EagerStop = recordEager

		fmt.Printf("Recording to %s\n", filename)
		var n int
		if duration > 0 {
			fmt.Printf("Streaming for %v...\n", duration)
			n, err = r.Record(ctx, sink, duration)
		} else {
			n, err = r.RecordUntil(ctx, sink, newConsole(os.Stdin).trigger("Press Enter to stop recording"))
		}
		if err != nil {
			cobra.CheckErr(fmt.Errorf("recording to %s failed after %d samples: %w", filename, n, err))
		}
		if n == 0 {
			cobra.CheckErr(fmt.Errorf("no samples received, %s not written", filename))
		}

		fmt.Printf("Successfully recorded %d samples to %s\n", n, filename)
	},
}

// recordDuration converts the --duration flag.
// Zero means an open-ended recording.
func recordDuration(seconds int) (time.Duration, error) {
	if seconds == 0 {
		return 0, nil
	}
	d := time.Duration(seconds) * time.Second
	if err := cyton.ValidateDuration(d); err != nil {
		return 0, err
	}
	return d, nil
}

func init() {
	recordCmd.Flags().IntVarP(&recordSeconds, "duration", "d", 0, "recording length in seconds (default: until Enter)")
	recordCmd.Flags().BoolVar(&recordEager, "eager", false, "stop at the first packet index wrap-around")
	rootCmd.AddCommand(recordCmd)
}
