package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sokinpui/dogs.go/dogs"
	"github.com/sokinpui/dogs.go/internal/ui"
)

func runHistory(cmd *cobra.Command, args []string) error {
	outputDir := "."
	if len(args) == 1 {
		outputDir = args[0]
	}
	if _, err := os.Stat(outputDir); err != nil {
		return fmt.Errorf("cannot read history: %w", err)
	}

	app, err := dogs.New(cfg, outputDir)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer app.Close()

	entries, err := app.History()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		ui.Info("No apply runs recorded in %s.", app.Root())
		return nil
	}

	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		ui.Header("%s  %s  %s (%d file(s))", e.Time().Format(time.DateTime), e.ID, e.Outcome, len(e.Operations))
		for _, op := range e.Operations {
			hash := op.ContentHash
			if len(hash) > 12 {
				hash = hash[:12]
			}
			ui.Path("%-6s %s %s", op.Action, op.Path, ui.FaintColor.Sprint(hash))
		}
	}
	return nil
}
