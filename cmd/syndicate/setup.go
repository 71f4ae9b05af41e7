// ABOUTME: Cobra command for interactive syndicate storage configuration.
// ABOUTME: Launches a bubbletea TUI wizard and writes the answers to the HCL config file.
package main

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/harper/syndicate/internal/config"
	"github.com/harper/syndicate/internal/tui"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Configure syndicate storage and feed registry",
	Long:  "Interactive wizard to configure the storage backend, data directory or DSN, and feed registry path.",
	// Setup writes the config that the root hooks would otherwise read.
	PersistentPreRunE:  func(cmd *cobra.Command, args []string) error { return nil },
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE:               runSetup,
}

func init() {
	rootCmd.AddCommand(setupCmd)
}

func runSetup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	model := tui.NewSetupModel(tui.Result{
		Backend:   cfg.Backend,
		DataDir:   cfg.DataDir,
		DSN:       cfg.DatabaseDSN,
		FeedsFile: cfg.FeedsFile,
	})

	p := tea.NewProgram(model, tea.WithContext(cmd.Context()))
	result, err := p.Run()
	if err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}

	out := cmd.OutOrStdout()
	final := result.(tui.SetupModel)
	if !final.ShouldSave() {
		fmt.Fprintln(out, "Setup canceled.")
		return nil
	}

	r := final.Result()
	cfg.Backend = r.Backend
	cfg.FeedsFile = r.FeedsFile
	if r.Backend == "postgres" {
		cfg.DatabaseDSN = r.DSN
	} else {
		cfg.DataDir = r.DataDir
	}

	path := configPath
	if path == "" {
		path = config.GetConfigPath()
	}
	if err := cfg.Save(path); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Fprintf(out, "Config saved to %s\n", config.ExpandPath(path))
	return nil
}
