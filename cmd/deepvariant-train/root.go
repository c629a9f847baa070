package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/ghodss/yaml"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/lucasbrambrink/deepvariant/internal/config"
	"github.com/lucasbrambrink/deepvariant/internal/train"
	"github.com/lucasbrambrink/deepvariant/pkg/check"
	"github.com/lucasbrambrink/deepvariant/pkg/logger"
	"github.com/lucasbrambrink/deepvariant/version"
)

const defaultConfigPath = "/etc/deepvariant/train.yaml"

// logStoreSize is how many log events to keep in memory.
const logStoreSize = 25000

var rootCmd = &cobra.Command{
	Use: "deepvariant-train",
	Run: func(cmd *cobra.Command, args []string) {
		switch err := runRoot(); {
		case err == nil:
		case train.IsTransient(err):
			log.Warn(fmt.Sprintf("%v", err))
			os.Exit(train.TransientExitCode)
		default:
			log.Error(fmt.Sprintf("%+v", err))
			os.Exit(1)
		}
	},
}

func runRoot() error {
	logStore := logger.NewLogBuffer(logStoreSize)
	log.AddHook(logStore)

	conf, err := initializeConfig()
	if err != nil {
		return err
	}

	printableConfig, err := conf.Printable()
	if err != nil {
		return err
	}
	log.Infof("training configuration: %s", printableConfig)

	s := train.NewSupervisor(version.Version, logStore, conf)
	return s.Run(context.Background())
}

// initializeConfig returns the validated configuration populated from the
// config file, environment variables, and command line flags.
func initializeConfig() (*config.Config, error) {
	// Fetch an initial config to get the config file path and read its settings into Viper.
	initialConfig, err := getConfig(v.AllSettings())
	if err != nil {
		return nil, err
	}

	bs, err := readConfigFile(initialConfig.ConfigFile)
	if err != nil {
		return nil, err
	}
	if err = mergeConfigBytesIntoViper(bs); err != nil {
		return nil, err
	}

	// Now call viper.AllSettings() again to get the full config, containing all values from CLI
	// flags, environment variables, and the configuration file.
	conf, err := getConfig(v.AllSettings())
	if err != nil {
		return nil, err
	}

	if err := check.Validate(conf); err != nil {
		return nil, err
	}

	return conf, nil
}

func readConfigFile(configPath string) ([]byte, error) {
	isDefault := configPath == ""
	if isDefault {
		configPath = defaultConfigPath
	}

	var err error
	if _, err = os.Stat(configPath); err != nil {
		if isDefault && os.IsNotExist(err) {
			log.Warnf("no configuration file at %s, skipping", configPath)
			return nil, nil
		}
		return nil, errors.Wrap(err, "error finding configuration file")
	}
	bs, err := os.ReadFile(configPath) // #nosec G304
	if err != nil {
		return nil, errors.Wrap(err, "error reading configuration file")
	}
	return bs, nil
}

func mergeConfigBytesIntoViper(bs []byte) error {
	var configMap map[string]interface{}
	if err := yaml.Unmarshal(bs, &configMap); err != nil {
		return errors.Wrap(err, "error unmarshal yaml configuration file")
	}
	if err := v.MergeConfigMap(configMap); err != nil {
		return errors.Wrap(err, "error merge configuration to viper")
	}
	return nil
}

func getConfig(configMap map[string]interface{}) (*config.Config, error) {
	conf := config.DefaultConfig()
	bs, err := json.Marshal(configMap)
	if err != nil {
		return nil, errors.Wrap(err, "cannot marshal configuration map into json bytes")
	}
	if err = yaml.Unmarshal(bs, &conf, yaml.DisallowUnknownFields); err != nil {
		return nil, errors.Wrap(err, "cannot unmarshal configuration")
	}

	if err := conf.Resolve(); err != nil {
		return nil, err
	}
	return conf, nil
}
