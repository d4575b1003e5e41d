package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fisheries-data/creel/internal/config"
	"github.com/fisheries-data/creel/internal/home"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the creel home directory and default config",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := home.New(homeDir)
		if err != nil {
			return err
		}
		if err := dir.EnsureExists(); err != nil {
			return err
		}

		if dir.ConfigExists() {
			fmt.Printf("config already exists at %s\n", dir.ConfigPath())
			return nil
		}
		if err := config.WriteDefault(dir.ConfigPath()); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}

		fmt.Printf("initialized %s\n", dir.Path())
		fmt.Printf("wrote default config to %s\n", dir.ConfigPath())
		return nil
	},
}
