package main

import (
	migreat "github.com/hashibuto/MiGreat"
	"github.com/hashibuto/MiGreat/internal/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var createCmd = &cobra.Command{
	Use:   "create [name]",
	Short: "Create a new migration manifest with the next sequence number",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := migreat.LoadConfig(viper.GetViper().GetString("config"))
		if err != nil {
			return err
		}
		name := "unnamed_migrator"
		if len(args) > 0 {
			name = args[0]
		}
		p, err := migreat.CreateMigration(migreat.CreateOptions{Name: name, Dir: cfg.MigrateDir})
		if err != nil {
			return err
		}
		common.GetLogger().WithComponent("cli").Info("wrote new migration", "path", p)
		return nil
	},
}
