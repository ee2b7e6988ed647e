// Loom is a tool-using conversational agent.
//
// Usage:
//
//	loom chat                  Start an interactive chat session
//	loom configure             Write the configuration file
//	loom sessions list         List stored sessions
//	loom sessions show <key>   Print a session transcript
//	loom sessions reset <key>  Delete a session's history
//	loom tools                 List the tools the model can call
//	loom status                Show the effective configuration
package main

import (
	"fmt"
	"os"

	"github.com/harun/loom/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
