// Package cmd implements the maquette command line interface.
package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"maquette/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "maquette",
	Short: "Delegation engine for staged 3D scene production",
	Long: `Maquette coordinates a roster of specialist capabilities through a fixed
production pipeline: planning, specification, script synthesis, engine
execution, scene progression, quality assurance, and rendering. Every step
is persisted, so an interrupted run resumes exactly where it stopped.`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is ./maquette.yaml)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("maquette")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.config/maquette")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("MAQUETTE")
	// Replace dots with underscores for nested keys in env vars
	// e.g., MAQUETTE_ENGINE_ADDR for engine.addr
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}
