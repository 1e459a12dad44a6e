package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"callstack/internal/bootstrap"
	"callstack/internal/domain"
	"callstack/internal/output"
	"callstack/internal/usecase"
	"callstack/internal/version"
)

type Dependencies struct {
	ConfigPath string
	Verbose    bool
	Services   *bootstrap.Services
}

func NewRootCmd(deps *Dependencies) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "callstack",
		Short: "Talk to your project backlog",
		Long:  "Record a voice command, send it to the callstack backend, and see what it did with it.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return deps.build(cmd)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.Version = version.Version
	rootCmd.SetVersionTemplate(version.Full() + "\n")

	rootCmd.PersistentFlags().StringVarP(&deps.ConfigPath, "config", "c", "", "Config file (YAML or TOML)")
	rootCmd.PersistentFlags().BoolVarP(&deps.Verbose, "verbose", "v", false, "Write logs to stderr")

	rootCmd.AddCommand(NewLoginCmd(deps))
	rootCmd.AddCommand(NewLogoutCmd(deps))
	rootCmd.AddCommand(NewRecordCmd(deps))
	rootCmd.AddCommand(NewDashboardCmd(deps))
	rootCmd.AddCommand(NewHistoryCmd(deps))
	rootCmd.AddCommand(NewActivityCmd(deps))
	rootCmd.AddCommand(NewDoctorCmd(deps))

	return rootCmd
}

// Execute runs the command line and releases whatever the command acquired,
// even when it failed.
func Execute(ctx context.Context, deps *Dependencies, args []string, in io.Reader, out io.Writer, errOut io.Writer) error {
	rootCmd := NewRootCmd(deps)
	rootCmd.SetArgs(args)
	rootCmd.SetIn(in)
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)

	err := rootCmd.ExecuteContext(ctx)
	if shutdownErr := deps.shutdown(); shutdownErr != nil && err == nil {
		err = shutdownErr
	}
	return err
}

func (d *Dependencies) build(cmd *cobra.Command) error {
	if d.Services != nil {
		return nil
	}
	logs := io.Discard
	if d.Verbose {
		logs = cmd.ErrOrStderr()
	}
	services, err := bootstrap.Build(cmd.Context(), bootstrap.Options{
		ConfigPath: d.ConfigPath,
		Version:    version.Version,
		Console:    logs,
	}, &consoleSink{formatter: output.NewFormatter(cmd.OutOrStdout())})
	if err != nil {
		return fmt.Errorf("initializing: %w", err)
	}
	d.Services = services
	return nil
}

func (d *Dependencies) shutdown() error {
	if d.Services == nil {
		return nil
	}
	err := d.Services.Shutdown(context.Background())
	d.Services = nil
	return err
}

// consoleSink prints recording progress as the controller reports it.
type consoleSink struct {
	formatter *output.Formatter
}

func (s *consoleSink) StateChanged(state domain.State) {
	s.formatter.State(usecase.Render(state))
}

func prompt(in *bufio.Reader, out io.Writer, label string) (string, error) {
	fmt.Fprint(out, label)
	line, err := in.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" && err != nil {
		if errors.Is(err, io.EOF) {
			return "", fmt.Errorf("no input for %q", strings.TrimSpace(strings.TrimSuffix(label, ": ")))
		}
		return "", err
	}
	return line, nil
}

func signedIn(ctx context.Context, deps *Dependencies) (*domain.Session, error) {
	session, err := deps.Services.Identity.CurrentSession(ctx)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, fmt.Errorf("%w: run 'callstack login' first", domain.ErrNoSession)
	}
	return session, nil
}
