// Package orchestrator implements the team lead: it analyzes a task, selects
// specialists, runs them in parallel, gates their results behind a quorum,
// synthesizes the outputs and verifies the resulting change-set.
//
// A run moves through these stages:
//
//	init -> analyze -> select -> build_subtasks -> dispatch -> validate
//	     -> synthesize -> verify -> completed | blocked
//
// Selecting zero specialists (a negative MaxSpecialists) ends the run as
// single_agent_sufficient, and a rejected validation ends it as blocked
// without synthesis. Errors that escape a stage end the run as failed and are
// returned with the partial Result.
//
// Example usage:
//
//	lead, err := orchestrator.New(orchestrator.Config{
//		Project:        "demo",
//		WorkDir:        repoPath,
//		Specialists:    runner,
//		MaxSpecialists: orchestrator.DefaultMaxSpecialists,
//		Checkpoints:    store,
//	})
//	result, err := lead.Orchestrate(ctx, "T-42", "Fix the login redirect loop")
package orchestrator
