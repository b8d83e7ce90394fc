package config

// Package config provides a reusable loader for the indexer's configuration
// files and environment variables. It is versioned so that applications can
// depend on a stable API contract.
//
// Version: v0.1.0

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/protorunes/indexer/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// Config is the unified configuration for a protorunes-indexer process. It
// mirrors the structure of the YAML files under cmd/config.
type Config struct {
	Bitcoin struct {
		RPCHost     string `mapstructure:"rpc_host" json:"rpc_host"`
		RPCPort     int    `mapstructure:"rpc_port" json:"rpc_port"`
		RPCUser     string `mapstructure:"rpc_user" json:"rpc_user"`
		RPCPass     string `mapstructure:"rpc_pass" json:"rpc_pass"`
		Network     string `mapstructure:"network" json:"network"`
		StartHeight uint64 `mapstructure:"start_height" json:"start_height"`
	} `mapstructure:"bitcoin" json:"bitcoin"`

	Store struct {
		Driver string `mapstructure:"driver" json:"driver"`
		Path   string `mapstructure:"path" json:"path"`
	} `mapstructure:"store" json:"store"`

	Protocols struct {
		IndexableTags []string `mapstructure:"indexable_tags" json:"indexable_tags"`
		HandlersDir   string   `mapstructure:"handlers_dir" json:"handlers_dir"`
	} `mapstructure:"protocols" json:"protocols"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

// Load reads configuration files and merges any environment specific
// overrides. The resulting configuration is stored in AppConfig and returned.
//
// The function uses the provided environment name to merge additional config
// files. If env is empty, only the default configuration is loaded.
func Load(env string) (*Config, error) {
	viper.SetConfigName("default")
	viper.AddConfigPath("cmd/config")
	viper.AddConfigPath("config")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		return nil, utils.Wrap(err, "load config")
	}

	if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, utils.Wrap(err, fmt.Sprintf("merge %s config", env))
		}
	}

	viper.SetEnvPrefix("protorunes")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv() // picks up PROTORUNES_* overrides

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the PROTORUNES_ENV environment
// variable.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("PROTORUNES_ENV", ""))
}
