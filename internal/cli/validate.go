package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/optisync/internal/config"
)

// ValidationResult is the JSON payload of a successful validate.
type ValidationResult struct {
	Valid  bool            `json:"valid"`
	Config EffectiveConfig `json:"config"`
}

// EffectiveConfig is a config after unification with the schema defaults.
type EffectiveConfig struct {
	Expiry          string            `json:"expiry"`
	MaxAttempts     int               `json:"max_attempts"`
	RetryBackoff    string            `json:"retry_backoff"`
	MatchSkew       string            `json:"match_skew"`
	ScrollThreshold float64           `json:"scroll_threshold"`
	Presence        EffectivePresence `json:"presence"`
}

// EffectivePresence mirrors config.Presence.
type EffectivePresence struct {
	Limit              int      `json:"limit"`
	Interval           string   `json:"interval"`
	Burst              int      `json:"burst"`
	SessionBatch       int      `json:"session_batch"`
	GroupRoute         string   `json:"group_route"`
	AvatarPlaceholders []string `json:"avatar_placeholders"`
}

// ValidationFailure is the error detail of a failed validate.
type ValidationFailure struct {
	File   string `json:"file,omitempty"`
	Line   int    `json:"line,omitempty"`
	Column int    `json:"column,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <config.cue>",
		Short: "Validate a configuration file",
		Long: `Validate a CUE configuration file against the embedded schema.

The file is unified with the schema defaults and must resolve to concrete
values within the schema's bounds. On success the effective configuration
is printed.

Exit codes:
  0 - Config valid
  1 - Config invalid
  2 - File unreadable`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	formatter.VerboseLog("Validating %s", path)
	cfg, err := config.Load(path)
	if err != nil {
		return outputValidateError(formatter, err)
	}

	effective := effectiveConfig(cfg)
	if opts.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Config: effective})
	}

	w := formatter.Writer
	fmt.Fprintln(w, "✓ Config valid")
	fmt.Fprintf(w, "  expiry: %s, max_attempts: %d, retry_backoff: %s, match_skew: %s\n",
		effective.Expiry, effective.MaxAttempts, effective.RetryBackoff, effective.MatchSkew)
	fmt.Fprintf(w, "  presence: limit %d, every %s (burst %d), session batch %d\n",
		effective.Presence.Limit, effective.Presence.Interval, effective.Presence.Burst, effective.Presence.SessionBatch)
	return nil
}

func outputValidateError(formatter *OutputFormatter, err error) error {
	var loadErr *config.LoadError
	if !errors.As(err, &loadErr) {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "validation error", err)
	}

	var details any
	if loadErr.Pos.IsValid() {
		details = ValidationFailure{
			File:   loadErr.Pos.Filename(),
			Line:   loadErr.Pos.Line(),
			Column: loadErr.Pos.Column(),
		}
	}
	if err := formatter.Error(loadErr.Code, loadErr.Message, details); err != nil {
		return err
	}

	if loadErr.Code == config.ErrCodeRead {
		return WrapExitError(ExitCommandError, "cannot read config", err)
	}
	return WrapExitError(ExitFailure, "config invalid", err)
}

func effectiveConfig(cfg config.Config) EffectiveConfig {
	return EffectiveConfig{
		Expiry:          cfg.Expiry.String(),
		MaxAttempts:     cfg.MaxAttempts,
		RetryBackoff:    cfg.RetryBackoff.String(),
		MatchSkew:       cfg.MatchSkew.String(),
		ScrollThreshold: cfg.ScrollThreshold,
		Presence: EffectivePresence{
			Limit:              cfg.Presence.Limit,
			Interval:           cfg.Presence.Interval.String(),
			Burst:              cfg.Presence.Burst,
			SessionBatch:       cfg.Presence.SessionBatch,
			GroupRoute:         cfg.Presence.GroupRoute,
			AvatarPlaceholders: cfg.Presence.AvatarPlaceholders,
		},
	}
}
