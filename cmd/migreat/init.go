package main

import (
	migreat "github.com/hashibuto/MiGreat"
	"github.com/hashibuto/MiGreat/internal/common"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a migration workspace in the current directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := migreat.Init(migreat.InitOptions{}); err != nil {
			return err
		}
		logger := common.GetLogger().WithComponent("cli")
		logger.Info("workspace initialized at ./")
		logger.Info("adjust defaults in ./" + migreat.ConfigFileName)
		return nil
	},
}
