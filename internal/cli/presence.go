package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/optisync/internal/config"
	"github.com/roach88/optisync/internal/model"
	"github.com/roach88/optisync/internal/presence"
	"github.com/roach88/optisync/internal/store"
)

// PresenceOptions holds flags for the presence command.
type PresenceOptions struct {
	*RootOptions
	Database string
	Config   string
	Limit    int
}

// PresenceReport is the JSON payload of the presence command.
type PresenceReport struct {
	Entries  []model.PresenceEntry `json:"entries"`
	Warnings []string              `json:"warnings,omitempty"`
}

// NewPresenceCommand creates the presence command.
func NewPresenceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PresenceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "presence",
		Short: "Print who is live in a record store",
		Long: `Aggregate the live presence list from a local record store.

Reads the member directory, active sessions, room assignments and team
slugs, then prints one entry per live member with the destination their
newest session links to. Failing sources degrade the list instead of
failing the command; the failures are reported as warnings.

Example:
  optisync presence --db ./optisync.db
  optisync presence --db ./optisync.db --config ./optisync.cue --limit 5`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPresence(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.Config, "config", "", "CUE config file (defaults apply when empty)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "override presence.limit from the config")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runPresence(opts *PresenceOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	cfg := config.Default()
	if opts.Config != "" {
		var err error
		cfg, err = config.Load(opts.Config)
		if err != nil {
			_ = formatter.Error(ErrCodeConfigInvalid, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to load config", err)
		}
	}
	if opts.Limit > 0 {
		cfg.Presence.Limit = opts.Limit
	}

	// Open creates missing files; an inspection command must not.
	if _, err := os.Stat(opts.Database); errors.Is(err, os.ErrNotExist) {
		_ = formatter.Error(ErrCodeNotFound, fmt.Sprintf("database not found: %s", opts.Database), nil)
		return NewExitError(ExitCommandError, fmt.Sprintf("database not found: %s", opts.Database))
	}

	formatter.VerboseLog("Opening database %s", opts.Database)
	st, err := store.Open(opts.Database)
	if err != nil {
		_ = formatter.Error(ErrCodeDatabase, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	p := presence.NewPipeline(st, presence.FromConfig(cfg.Presence)...)
	entries, err := p.Refresh(ctx)
	report := PresenceReport{Entries: entries}
	if err != nil {
		report.Warnings = strings.Split(err.Error(), "\n")
	}
	if report.Entries == nil {
		report.Entries = []model.PresenceEntry{}
	}

	if opts.Format == "json" {
		return formatter.Success(report)
	}
	return outputPresenceText(cmd, report)
}

func outputPresenceText(cmd *cobra.Command, report PresenceReport) error {
	for _, w := range report.Warnings {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", w)
	}

	out := cmd.OutOrStdout()
	if len(report.Entries) == 0 {
		fmt.Fprintln(out, "Nobody is live.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "USER\tSESSION\tMODE\tDESTINATION\tSTARTED")
	for _, e := range report.Entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			e.Username, e.SessionID, e.Mode, e.Destination, e.StartedAt.UTC().Format(time.RFC3339))
	}
	return tw.Flush()
}
