// Package config loads engine settings from CUE files validated against an
// embedded schema.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

//go:embed schema.cue
var schemaSource []byte

// Error codes reported by LoadError.
const (
	ErrCodeRead    = "E201" // config file unreadable
	ErrCodeSyntax  = "E202" // CUE syntax error
	ErrCodeInvalid = "E203" // value does not satisfy #Config
	ErrCodeDecode  = "E204" // concrete value could not be decoded
)

// LoadError describes a configuration failure, with a CUE position when one
// is known.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Config holds engine and presence settings.
type Config struct {
	Expiry          time.Duration
	MaxAttempts     int
	RetryBackoff    time.Duration
	MatchSkew       time.Duration
	ScrollThreshold float64
	Presence        Presence
}

// Presence holds presence pipeline settings.
type Presence struct {
	Limit              int
	Interval           time.Duration
	Burst              int
	SessionBatch       int
	GroupRoute         string
	AvatarPlaceholders []string
}

// rawConfig mirrors #Config field for field.
type rawConfig struct {
	Expiry          string      `json:"expiry"`
	MaxAttempts     int         `json:"max_attempts"`
	RetryBackoff    string      `json:"retry_backoff"`
	MatchSkew       string      `json:"match_skew"`
	ScrollThreshold float64     `json:"scroll_threshold"`
	Presence        rawPresence `json:"presence"`
}

type rawPresence struct {
	Limit              int      `json:"limit"`
	Interval           string   `json:"interval"`
	Burst              int      `json:"burst"`
	SessionBatch       int      `json:"session_batch"`
	GroupRoute         string   `json:"group_route"`
	AvatarPlaceholders []string `json:"avatar_placeholders"`
}

// Default returns the schema defaults.
func Default() Config {
	cfg, err := LoadBytes("default.cue", nil)
	if err != nil {
		panic(fmt.Sprintf("config: embedded schema invalid: %v", err))
	}
	return cfg
}

// Load reads a CUE file and unifies it with the schema.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, &LoadError{Code: ErrCodeRead, Message: err.Error()}
	}
	return LoadBytes(path, data)
}

// LoadBytes is Load for in-memory sources. name is used in positions.
func LoadBytes(name string, data []byte) (Config, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileBytes(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return Config{}, cueLoadError(ErrCodeSyntax, err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	user := ctx.CompileBytes(data, cue.Filename(name))
	if err := user.Err(); err != nil {
		return Config{}, cueLoadError(ErrCodeSyntax, err)
	}

	v := def.Unify(user)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return Config{}, cueLoadError(ErrCodeInvalid, err)
	}

	var raw rawConfig
	if err := v.Decode(&raw); err != nil {
		return Config{}, cueLoadError(ErrCodeDecode, err)
	}
	return raw.resolve()
}

func (r rawConfig) resolve() (Config, error) {
	cfg := Config{
		MaxAttempts:     r.MaxAttempts,
		ScrollThreshold: r.ScrollThreshold,
		Presence: Presence{
			Limit:              r.Presence.Limit,
			Burst:              r.Presence.Burst,
			SessionBatch:       r.Presence.SessionBatch,
			GroupRoute:         r.Presence.GroupRoute,
			AvatarPlaceholders: r.Presence.AvatarPlaceholders,
		},
	}
	durations := []struct {
		field string
		src   string
		dst   *time.Duration
	}{
		{"expiry", r.Expiry, &cfg.Expiry},
		{"retry_backoff", r.RetryBackoff, &cfg.RetryBackoff},
		{"match_skew", r.MatchSkew, &cfg.MatchSkew},
		{"presence.interval", r.Presence.Interval, &cfg.Presence.Interval},
	}
	for _, d := range durations {
		parsed, err := time.ParseDuration(d.src)
		if err != nil {
			return Config{}, &LoadError{Code: ErrCodeDecode, Message: fmt.Sprintf("%s: %v", d.field, err)}
		}
		*d.dst = parsed
	}
	if cfg.Expiry <= 0 {
		return Config{}, &LoadError{Code: ErrCodeInvalid, Message: "expiry: must be positive"}
	}
	return cfg, nil
}

func cueLoadError(code string, err error) *LoadError {
	le := &LoadError{Code: code, Message: cueerrors.Details(err, nil)}
	if errs := cueerrors.Errors(err); len(errs) > 0 {
		le.Pos = errs[0].Position()
		le.Message = errs[0].Error()
	}
	return le
}

// IsLoadError reports whether err is a LoadError with the given code.
func IsLoadError(err error, code string) bool {
	var le *LoadError
	return errors.As(err, &le) && le.Code == code
}
