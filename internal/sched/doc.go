// Package sched is the event-sourced scheduling engine.
//
// Every decision is derived from the step event log, never from memory, so
// a restarted process picks up exactly where the previous one stopped:
//
//	Loop -> Orchestrator -> Gate.Decide -> Runner.Run -> store.Append
//
// Execution is strictly sequential: one step at a time, one cycle at a
// time. The loop applies no timeouts to step work; a step that needs a
// bound must enforce it inside its own work function.
package sched
