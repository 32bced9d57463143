// Package process runs external commands and streams their combined output
// line by line.
//
// A Runner owns one child process. stdout and stderr share a single pipe so
// lines arrive in the order they were written. Cancel sends SIGTERM to the
// child's process group and escalates to SIGKILL after the grace period.
//
//	r := process.NewRunner(process.Callbacks{
//	    OnLine:     func(line string) { fmt.Println(line) },
//	    OnFinished: func(code int) { fmt.Println("exit", code) },
//	})
//	if err := r.Start(ctx, process.Command{Argv: []string{"mmcore", "install", "--plain-output"}}); err != nil {
//	    return err
//	}
//	<-r.Done()
//
// Stream offers the same run as a pull-based iterator, and Run waits for
// completion and collects the output.
//
// The package relies on process groups and is Unix-only.
package process
