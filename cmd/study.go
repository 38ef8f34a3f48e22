package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/sergev/cyton/config"
	"github.com/spf13/cobra"
)

var (
	studySubject string
	studyDay     string
	studyPlan    []config.Task
)

var studyCmd = &cobra.Command{
	Use:   "study [TASK...]",
	Short: "Run the sitting study protocol",
	Long: `Run the sitting study protocol.
Each task from the config file is recorded in turn into
SUBJECT_DayN_TASK.txt in the current directory. The operator
presses Enter to start and again to stop every recording.
Naming tasks records only those, in the given order.`,
	// Resolve tasks before the board is opened
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setup()
		tasks, err := studyTasks(args)
		if err != nil {
			return err
		}
		studyPlan = tasks
		connect()
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		if board == nil {
			cobra.CheckErr(fmt.Errorf("board not available"))
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		in := newConsole(os.Stdin)
		r := board.NewRecorder()
		r.Settle = config.Settle

		for _, task := range studyPlan {
			fmt.Println(task.Title)
			fmt.Println("Press enter when you are ready to record")
			if err := in.waitEnter(ctx); err != nil {
				cobra.CheckErr(fmt.Errorf("study interrupted before %s: %w", task.Title, err))
			}

			filename := studyFilename(studySubject, studyDay, task.File)
			sink, err := openSink(filename)
			if err != nil {
				cobra.CheckErr(err)
			}
			n, err := r.RecordUntil(ctx, sink, in.trigger("Recording... press Enter to stop"))
			if err != nil {
				cobra.CheckErr(fmt.Errorf("failed to record %s: %w", task.Title, err))
			}
			if n == 0 {
				fmt.Printf("No samples received, %s not written\n", filename)
				continue
			}
			fmt.Printf("Recorded %d samples to %s\n", n, filename)
		}

		fmt.Println("Test done")
	},
}

// studyTasks returns the named tasks, or the configured study order
// when no names are given.
func studyTasks(names []string) ([]config.Task, error) {
	if len(names) == 0 {
		if len(config.Study) == 0 {
			return nil, fmt.Errorf("no study tasks in %s", config.Path())
		}
		return config.Study, nil
	}
	tasks := make([]config.Task, 0, len(names))
	for _, name := range names {
		task, err := config.GetTask(name)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

func init() {
	studyCmd.Flags().StringVarP(&studySubject, "subject", "s", "", "subject identifier")
	studyCmd.Flags().StringVar(&studyDay, "day", "", "study day")
	studyCmd.MarkFlagRequired("subject")
	studyCmd.MarkFlagRequired("day")
	rootCmd.AddCommand(studyCmd)
}
