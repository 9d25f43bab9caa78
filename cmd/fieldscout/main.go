// Package main is the fieldscout command: it lists cameras, prints the analyzer schema, and runs
// the live weed-detection server.
package main

import (
	"context"

	"go.viam.com/utils"

	"go.viam.com/fieldscout/logging"
)

var logger = logging.NewLogger("fieldscout")

func main() {
	utils.ContextualMain(mainWithArgs, logger)
}

func mainWithArgs(ctx context.Context, args []string, logger logging.Logger) error {
	return newApp(logger).RunContext(ctx, args)
}
