package main

import (
	"context"

	migreat "github.com/hashibuto/MiGreat"
	"github.com/hashibuto/MiGreat/internal/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var upgradeCmd = &cobra.Command{
	Use:   "upgrade",
	Short: "Provision the service schema and apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		v := viper.GetViper()
		cfg, err := migreat.LoadConfig(v.GetString("config"))
		if err != nil {
			return err
		}

		level := common.ParseLogLevel(cfg.Logging.Level)
		if v.GetBool("verbose") {
			level = common.LogLevelDebug
		}
		if cfg.Logging.Format == "json" {
			common.SetDefaultLogger(common.NewJSONLogger(level))
		} else {
			common.SetDefaultLogger(common.NewLogger(level))
		}
		logger := common.GetLogger().WithComponent("cli")

		applied, err := migreat.Upgrade(context.Background(), cfg)
		// Units applied before a failure stay applied; report them either way.
		for _, a := range applied {
			logger.Info("applied", "version", a.Version, "name", a.Name)
		}
		if err != nil {
			return err
		}
		if len(applied) == 0 {
			logger.Info("nothing to apply")
		}
		return nil
	},
}
