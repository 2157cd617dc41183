// Package process runs isolated one-shot worker subprocesses.
//
// The hub hands allocation-heavy work to a child process so the large
// intermediate maps never live in the service's own heap. Each Run starts
// a fresh child, writes the request to its stdin, and returns what it
// wrote to stdout. Stderr is forwarded to the logger line by line and its
// last lines are appended to failure errors.
//
// Every run has its own deadline, independent of the caller's. When it
// expires the whole process group receives SIGTERM, then SIGKILL once the
// graceful timeout has passed.
//
//	runner := process.NewRunner(process.Config{
//	    Name:    "build-worker",
//	    Binary:  exe,
//	    Args:    []string{"worker"},
//	    Timeout: 20 * time.Second,
//	})
//	out, err := runner.Run(ctx, request)
package process
