package main

import (
	"context"
	"fmt"
	"os"

	"github.com/inkwellhq/inkwell-sync/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "inkwell-sync: %v\n", err)
		os.Exit(1)
	}
}
