// Package tui provides the read-only terminal view for a squadron run.
//
// The view follows one orchestration as the team lead publishes monitor
// events: the current stage, one row per dispatched specialist with its
// iteration budget, running cost, and an activity log. Users can only scroll
// the log and quit with 'q' or Ctrl+C.
//
// Usage:
//
//	program, app := tui.NewProgram(taskID)
//	go tui.Forward(program, emitter.Events())
//	go program.Run()
//
//	// Signal completion
//	program.Send(tui.DoneMsg{Status: "completed", Reason: "all checks passed"})
package tui
