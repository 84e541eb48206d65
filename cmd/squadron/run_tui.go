package main

import (
	"context"
	"fmt"

	"github.com/ShayCichocki/squadron/internal/orchestrator"
	"github.com/ShayCichocki/squadron/internal/tui"
)

// runWithTUI runs fn while the run view follows the team lead's events.
// Quitting the view before the run ends cancels it.
func runWithTUI(ctx context.Context, cancel context.CancelFunc, rt *runtime, taskID string,
	fn func(context.Context) (*orchestrator.Result, error)) (result *orchestrator.Result, retErr error) {
	program, _ := tui.NewProgram(taskID)
	if rt.emitter != nil {
		go tui.Forward(program, rt.emitter.Events())
	}

	type outcome struct {
		result *orchestrator.Result
		err    error
	}
	orchDone := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				orchDone <- outcome{err: fmt.Errorf("PANIC in orchestrator: %v", r)}
			}
		}()
		res, err := fn(ctx)
		orchDone <- outcome{result: res, err: err}
	}()

	tuiDone := make(chan error, 1)
	go func() {
		_, err := program.Run()
		tuiDone <- err
	}()

	select {
	case o := <-orchDone:
		msg := tui.DoneMsg{Err: o.err}
		if o.result != nil {
			msg.Status = string(o.result.Status)
			msg.Reason = o.result.Reason
		} else if o.err == nil {
			msg.Status = "idle"
			msg.Reason = "no ready tasks in the queue"
		}
		program.Send(msg)
		// Keep the final state on screen until the user quits.
		if err := <-tuiDone; err != nil && o.err == nil {
			return o.result, err
		}
		return o.result, o.err

	case err := <-tuiDone:
		cancel()
		o := <-orchDone
		if err != nil && o.err == nil {
			return o.result, err
		}
		return o.result, o.err
	}
}
