package cli

import (
	"bufio"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"callstack/internal/output"
	"callstack/internal/usecase"
)

func NewRecordCmd(deps *Dependencies) *cobra.Command {
	var duration time.Duration

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record a voice command and send it",
		Long:  "Record from the microphone until Enter is pressed (or --duration elapses), then upload it.\nCtrl+C discards the recording without uploading.",
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := output.NewFormatter(cmd.OutOrStdout())
			controller := deps.Services.Controller
			defer deps.Services.Reporter.Recover()

			ctx := cmd.Context()
			if err := controller.Start(ctx); err != nil {
				return err
			}

			interrupt := make(chan os.Signal, 1)
			signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(interrupt)

			var (
				enter   chan struct{}
				elapsed <-chan time.Time
			)
			if duration > 0 {
				timer := time.NewTimer(duration)
				defer timer.Stop()
				elapsed = timer.C
				formatter.Info("Recording for " + duration.String() + ", Ctrl+C to discard")
			} else {
				enter = make(chan struct{})
				go func() {
					_, _ = bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
					close(enter)
				}()
				formatter.Info("Press Enter to send, Ctrl+C to discard")
			}

			select {
			case <-interrupt:
				if err := controller.Abort(); err != nil {
					return err
				}
				formatter.Warning("Recording discarded")
				return nil
			case <-ctx.Done():
				_ = controller.Abort()
				return ctx.Err()
			case <-enter:
			case <-elapsed:
			}

			state, err := controller.Stop(ctx)
			view := usecase.Render(state)
			if err != nil {
				return errors.New(view.Error)
			}
			formatter.Result(view)
			return nil
		},
	}

	cmd.Flags().DurationVarP(&duration, "duration", "d", 0, "Stop automatically after this long (e.g. 10s)")

	return cmd
}
