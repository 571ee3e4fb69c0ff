// Package internal provides the program-level verification engine.
//
// An Engine reads a program file, runs the fold/unfold analysis on each of
// its procedures in parallel and hands every procedure that analysed
// cleanly to a prover. Analysis failures, unsupported constructs and
// prover rejections come back as issues, each tagged with a rule name whose
// severity is configurable.
//
// Key components:
//
// Engine: loads programs, verifies procedures and turns results into issues.
// Each procedure is analysed against its own copy of the predicate table.
//
// Cache: a gob file of issues per program file, valid while the content and
// the engine settings that produced them stay the same.
//
// Watching: StartWatching re-verifies program files as they are saved.
//
// Usage:
//
//	engine := internal.NewEngine(logger, internal.WithMaxLoopIterations(16))
//	issues, err := engine.Run(ctx, "list.vir.yaml")
//	if err != nil {
//	    // a load error or an internal error in some procedure
//	}
//	for _, issue := range issues {
//	    fmt.Printf("%s: %s\n", issue.Start, issue.Message)
//	}
package internal
