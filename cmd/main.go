package main

import (
	"context"
	"fmt"
	"os"

	"github.com/cros-updates/cros-updates/internal/utils"
)

func main() {
	ctx, cancel := utils.SetupContext(context.Background())
	err := newRootCommand().ExecuteContext(ctx)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
