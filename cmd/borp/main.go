// Command borp runs the parts of a live agent stream.
//
// Usage:
//
//	borp [--config borp.yaml] <command>
//
// Commands:
//
//	agent   - read chat, reply, think and animate on a schedule
//	server  - reference collaborator server with websocket fan-out
//	viewer  - headless viewer presenting responses with audio and lip-sync
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
