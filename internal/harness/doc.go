// Package harness runs scripted scenarios against a real view and store.
//
// Each scenario gets a fresh in-memory store, a stopped clock and sequential
// correlation ids, so a run is fully deterministic and its trace and final
// view can be compared against golden files.
//
// # Scenario Format
//
//	name: offline_resend
//	description: "What this scenario validates"
//	config: |
//	  max_attempts: 1
//	seed:
//	  members:  [{id: u1, username: owl}]
//	  messages: [{id: m1, author: u1, body: hello, at: 1s}]
//	  polls:    [{id: poll1, options: [yes, no]}]
//	  sessions: [{id: "101", profile: u1, mode: group}]
//	steps:
//	  - network: offline          # online | offline | lossy
//	  - send: hi
//	  - flush: true               # apply queued responses
//	  - advance: 31s
//	  - tick: true                # expire stale intents
//	  - expect:
//	      timeline: []
//	      failures: [c1]
//	      draft: hi
//	  - resend: true              # send the restored draft
//	  - react: m1
//	    error: TARGET_BUSY        # the step must fail with this code
//
// Steps do exactly one thing. Expect fields that are omitted are not
// checked.
package harness
