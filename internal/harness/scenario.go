package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/optisync/internal/model"
)

// Scenario is a scripted session against a fresh record store: seed data,
// then a list of user actions, network conditions and expectations.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Conversation is the conversation the view shows. Defaults to "conv1".
	Conversation string `yaml:"conversation,omitempty"`

	// Viewer is the profile the view acts as. Defaults to "me".
	Viewer string `yaml:"viewer,omitempty"`

	// Config is optional CUE overriding the default configuration.
	Config string `yaml:"config,omitempty"`

	// Seed is loaded into the store before the first step, at Epoch.
	Seed Seed `yaml:"seed,omitempty"`

	// Steps run in order. Each step does exactly one thing.
	Steps []Step `yaml:"steps"`
}

// Seed is the initial content of the record store. Offsets are relative to
// the scenario start.
type Seed struct {
	Members   []MemberSeed   `yaml:"members,omitempty"`
	Messages  []MessageSeed  `yaml:"messages,omitempty"`
	Reactions []ReactionSeed `yaml:"reactions,omitempty"`
	Polls     []PollSeed     `yaml:"polls,omitempty"`
	Votes     []VoteSeed     `yaml:"votes,omitempty"`
	Sessions  []SessionSeed  `yaml:"sessions,omitempty"`
	Rooms     []RoomSeed     `yaml:"rooms,omitempty"`
	Teams     []TeamSeed     `yaml:"teams,omitempty"`
}

type MemberSeed struct {
	ID          string `yaml:"id"`
	Username    string `yaml:"username"`
	DisplayName string `yaml:"display_name,omitempty"`
	AvatarURL   string `yaml:"avatar_url,omitempty"`
}

type MessageSeed struct {
	ID     string        `yaml:"id"`
	Author string        `yaml:"author"`
	Body   string        `yaml:"body"`
	At     time.Duration `yaml:"at,omitempty"`
}

type ReactionSeed struct {
	Post string `yaml:"post"`
	By   string `yaml:"by"`
}

type PollSeed struct {
	ID      string   `yaml:"id"`
	Options []string `yaml:"options"`
}

type VoteSeed struct {
	Poll   string `yaml:"poll"`
	Option string `yaml:"option"`
	By     string `yaml:"by"`
}

type SessionSeed struct {
	ID      string        `yaml:"id"`
	Profile string        `yaml:"profile"`
	Mode    string        `yaml:"mode"`
	At      time.Duration `yaml:"at,omitempty"`
}

type RoomSeed struct {
	Session string `yaml:"session"`
	Team    string `yaml:"team"`
}

type TeamSeed struct {
	ID   string `yaml:"id"`
	Slug string `yaml:"slug"`
}

// Step is one scenario step. Exactly one field other than Error may be set.
type Step struct {
	// User actions.
	Send    *string   `yaml:"send,omitempty"`
	Resend  bool      `yaml:"resend,omitempty"`
	React   string    `yaml:"react,omitempty"`
	Vote    *VoteStep `yaml:"vote,omitempty"`
	Pin     *PinStep  `yaml:"pin,omitempty"`
	Delete  string    `yaml:"delete,omitempty"`
	Cancel  string    `yaml:"cancel,omitempty"`
	Dismiss string    `yaml:"dismiss,omitempty"`

	// Save submits several independent changes as one batch.
	Save []SaveItem `yaml:"save,omitempty"`

	// Environment.
	Network  string        `yaml:"network,omitempty"`
	Advance  time.Duration `yaml:"advance,omitempty"`
	Post     *MessageSeed  `yaml:"post,omitempty"`
	Live     *SessionSeed  `yaml:"live,omitempty"`
	End      string        `yaml:"end,omitempty"`
	Room     *RoomSeed     `yaml:"room,omitempty"`

	// Engine drivers.
	Tick     bool `yaml:"tick,omitempty"`
	Flush    bool `yaml:"flush,omitempty"`
	Refresh  bool `yaml:"refresh,omitempty"`
	Presence bool `yaml:"presence,omitempty"`

	Expect *Expect `yaml:"expect,omitempty"`

	// Error is the error code the step is expected to return.
	Error string `yaml:"error,omitempty"`
}

// SaveItem is one change of a save step. On is the desired end state for
// react and pin.
type SaveItem struct {
	Kind   string `yaml:"kind"`
	Target string `yaml:"target,omitempty"`
	Body   string `yaml:"body,omitempty"`
	Option string `yaml:"option,omitempty"`
	On     bool   `yaml:"on,omitempty"`
}

type VoteStep struct {
	Poll   string `yaml:"poll"`
	Option string `yaml:"option"`
}

type PinStep struct {
	Post   string `yaml:"post"`
	Pinned bool   `yaml:"pinned"`
}

// Expect checks the view after the preceding steps. Unset fields are not
// checked; an empty list checks for emptiness.
type Expect struct {
	// Timeline entries formatted "tag id body".
	Timeline []string `yaml:"timeline,omitempty"`

	// Failures lists the correlation ids awaiting dismissal.
	Failures []string `yaml:"failures,omitempty"`

	// Pending is the number of unresolved intents.
	Pending *int `yaml:"pending,omitempty"`

	// Status maps correlation ids to intent status; "gone" means untracked.
	Status map[string]string `yaml:"status,omitempty"`

	Draft    *string         `yaml:"draft,omitempty"`
	Reaction *ReactionExpect `yaml:"reaction,omitempty"`
	Poll     *PollExpect     `yaml:"poll,omitempty"`
	Pinned   *PinStep        `yaml:"pinned,omitempty"`

	// Presence entries formatted "session destination".
	Presence []string `yaml:"presence,omitempty"`

	// Calls is the number of backend calls made so far.
	Calls *int `yaml:"calls,omitempty"`
}

type ReactionExpect struct {
	Post     string `yaml:"post"`
	Selected bool   `yaml:"selected"`
	Count    int64  `yaml:"count"`
}

type PollExpect struct {
	Poll string `yaml:"poll"`

	// Options formatted "option count" with a trailing "*" for the viewer's
	// selection.
	Options []string `yaml:"options"`
}

// Network modes.
const (
	NetworkOnline  = "online"
	NetworkOffline = "offline"
	NetworkLossy   = "lossy"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	if scenario.Conversation == "" {
		scenario.Conversation = "conv1"
	}
	if scenario.Viewer == "" {
		scenario.Viewer = "me"
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if _, err := step.kind(); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	}

	for i, sess := range s.Seed.Sessions {
		if err := validMode(sess.Mode); err != nil {
			return fmt.Errorf("seed.sessions[%d]: %w", i, err)
		}
	}

	return nil
}

func validMode(mode string) error {
	if mode != "solo" && mode != "group" {
		return fmt.Errorf("mode must be solo or group, got %q", mode)
	}
	return nil
}

// kind names the single thing a step does.
func (s Step) kind() (string, error) {
	var set []string
	add := func(ok bool, name string) {
		if ok {
			set = append(set, name)
		}
	}
	add(s.Send != nil, "send")
	add(s.Resend, "resend")
	add(s.React != "", "react")
	add(s.Vote != nil, "vote")
	add(s.Pin != nil, "pin")
	add(s.Delete != "", "delete")
	add(s.Cancel != "", "cancel")
	add(s.Dismiss != "", "dismiss")
	add(len(s.Save) > 0, "save")
	add(s.Network != "", "network")
	add(s.Advance != 0, "advance")
	add(s.Post != nil, "post")
	add(s.Live != nil, "live")
	add(s.End != "", "end")
	add(s.Room != nil, "room")
	add(s.Tick, "tick")
	add(s.Flush, "flush")
	add(s.Refresh, "refresh")
	add(s.Presence, "presence")
	add(s.Expect != nil, "expect")

	switch len(set) {
	case 0:
		return "", fmt.Errorf("step does nothing")
	case 1:
	default:
		return "", fmt.Errorf("step sets %v; one action per step", set)
	}

	switch {
	case s.Network != "" && s.Network != NetworkOnline && s.Network != NetworkOffline && s.Network != NetworkLossy:
		return "", fmt.Errorf("unknown network mode %q", s.Network)
	case s.Advance < 0:
		return "", fmt.Errorf("advance must be positive")
	case s.Live != nil:
		if err := validMode(s.Live.Mode); err != nil {
			return "", err
		}
	case len(s.Save) > 0:
		for i, item := range s.Save {
			if !model.Kind(item.Kind).Valid() {
				return "", fmt.Errorf("save[%d]: unknown kind %q", i, item.Kind)
			}
		}
	case s.Expect != nil && s.Error != "":
		return "", fmt.Errorf("expect steps cannot carry an error")
	}
	return set[0], nil
}
