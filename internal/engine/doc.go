// Package engine implements the optimistic-update and reconciliation engine.
//
// A user action becomes an Intent in the MutationQueue the moment it fires,
// so the view can render it before the backend answers. The request runs
// asynchronously; its response, and every later authoritative refresh, flow
// back through the Matcher, which resolves each intent to confirmed,
// rejected or still pending. BuildTimeline merges confirmed records with the
// remaining intents into one stable, duplicate-free list.
//
// ARCHITECTURE:
//
// One View per mounted screen:
// The View is the explicit store object for one screen. All state changes
// go through its entry points (SendMessage, ToggleReaction, CastVote,
// SetPinned, Delete, Cancel, Dismiss, Apply, Tick) and happen under one
// lock, so the queue has a single logical writer. Views never touch each
// other's intents.
//
// Event Processing Flow:
//  1. Entry point appends a pending Intent (synchronous, immediate render)
//  2. Dispatcher runs the backend call off the writer path, retrying
//     transient failures within the attempt budget
//  3. The response is enqueued to the view's FIFO event queue
//  4. Run() / Flush() dequeues and resolves it
//  5. Apply() reaps intents whose effect is evident in a fresh snapshot,
//     even if their response was lost
//  6. Tick() expires intents that outlived their validity window and
//     reverts them, restoring the user's input as a draft
//
// Closing a view stops reconciliation for it. In-flight requests are not
// cancelled; they run on a context detached from the caller's.
//
// ORDERING:
//
// Intents are stamped with a per-queue monotonic seq in addition
// to wall-clock CreatedAt. Timeline ties on timestamp break by insertion
// order, never by map iteration or goroutine scheduling.
package engine
