// Package model provides the value types shared by the optisync engine.
//
// This package contains type definitions and pure helpers only. All other
// internal packages import model; model imports nothing internal.
//
// Key design constraints:
//   - Confirmed data (Record, ReactionState, PollOption, PinState) is
//     immutable from the engine's point of view; it is read and displayed,
//     never patched field by field.
//   - Intents carry a logical Seq (insertion order) in addition to wall-clock
//     CreatedAt, so ordering ties break deterministically.
//   - All JSON tags use snake_case.
package model
