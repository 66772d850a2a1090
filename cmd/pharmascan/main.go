/**
 * PharmaScan - Main Entry Point
 *
 * Reads medicine packaging photographs and reports the pharmaceutical
 * substances printed on them.
 *
 * Commands:
 * - serve:   HTTP API (upload, history, lookup)
 * - worker:  queue consumer (Redis list or asynq)
 * - scan:    one-shot scan of a local image, JSON to stdout
 * - enqueue: submit an image to the worker queue
 */

package main

import (
	"context"
	"os"

	"github.com/charmbracelet/fang"
)

const version = "0.3.0"

func main() {
	root := newRootCmd()

	if err := fang.Execute(
		context.Background(),
		root,
		fang.WithVersion(version),
		fang.WithNotifySignal(os.Interrupt, os.Kill),
	); err != nil {
		os.Exit(1)
	}
}
