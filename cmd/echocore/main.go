// Command echocore runs the consciousness runtime core: one or more
// per-agent frame-pipeline engines, optionally backed by Dgraph or
// Supabase storage and exposed over the internal/api HTTP/websocket
// surface.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
