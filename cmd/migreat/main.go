package main

import (
	"os"

	"github.com/hashibuto/MiGreat/internal/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "migreat",
	Short: "Schema-isolated PostgreSQL migrations for microservices",
	Long: "migreat applies sequence-numbered schema migrations for a single " +
		"microservice, provisioning a dedicated schema and a non-privileged " +
		"service identity scoped to it.",
}

func init() {
	v := viper.GetViper()
	v.SetDefault("config", "MiGreat.yaml")

	// Environment variable support: MIGREAT_CONFIG, ...
	v.SetEnvPrefix("MIGREAT")
	v.AutomaticEnv()

	rootCmd.PersistentFlags().String("config", v.GetString("config"), "path to the MiGreat config file")
	_ = v.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))

	upgradeCmd.Flags().Bool("verbose", false, "enable verbose output")
	_ = v.BindPFlag("verbose", upgradeCmd.Flags().Lookup("verbose"))

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(upgradeCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		common.GetLogger().Error("command failed", "error", err)
		os.Exit(1)
	}
}
