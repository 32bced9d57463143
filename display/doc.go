// Package display holds the state behind the installer output view.
//
// A Display wraps the installer command, starts a fresh process.Runner for
// every run and folds its callbacks into a Snapshot: the most recent line,
// whether the run and cancel controls are enabled and how the last run
// ended. Every change is also published as an Event so that a terminal UI
// or an SSE stream can follow along.
//
//	d := display.New(process.Command{Argv: []string{"mmcore", "install", "--plain-output"}},
//		display.WithPublisher(pub))
//	runID, err := d.Run(ctx, display.RunRequest{Release: "20250310"})
//
// Run is rejected with INVALID_STATE until the finished callback of the
// previous run has been processed. Success is decided by the exit code
// alone.
package display
