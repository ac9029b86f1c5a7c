// Package config is responsible for initializing the application's
// configuration. It uses the Viper library to read settings from a config
// file and environment variables, providing a unified configuration system.
package config

import (
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/moltgraph/moltgraph/internal/config"
)

// InitConfig initializes the application's configuration using Viper.
// It sets up default values, defines configuration search paths, and enables
// reading from environment variables. Designed to be called once at startup
// via cobra.OnInitialize. A non-empty cfgFile pins the config to that path
// instead of searching.
func InitConfig(cfgFile string) {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/moltgraph/")
		viper.AddConfigPath("$HOME/.moltgraph")
	}

	config.SetDefaults(viper.GetViper())

	// e.g. MOLTGRAPH_MOLTBOOK_API_KEY, MOLTGRAPH_NEO4J_PASSWORD
	viper.SetEnvPrefix("MOLTGRAPH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			zap.L().Debug("config file not found; using defaults and environment")
		} else {
			zap.L().Error("error reading config file", zap.Error(err))
		}
	} else {
		zap.L().Info("using config file", zap.String("path", viper.ConfigFileUsed()))
	}
}
