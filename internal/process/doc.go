// Package process runs short-lived external commands.
//
// The bridge reaches the appliance through a command-line tool, one
// invocation per query. Each invocation is bounded by a timeout, runs in its
// own process group, and has its output captured up to a size limit.
//
// Example usage:
//
//	runner := process.NewRunner(process.Config{Timeout: 10 * time.Second})
//	res, err := runner.Run(ctx, "python3", "-m", "pyduro", "-b", host, "-s", serial, "-p", pin, "status")
//	if err != nil {
//	    return err
//	}
//	fmt.Printf("%s\n", res.Stdout)
package process
