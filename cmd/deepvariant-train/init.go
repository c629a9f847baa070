package main

import (
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/lucasbrambrink/deepvariant/internal/config"
	"github.com/lucasbrambrink/deepvariant/version"
)

var v *viper.Viper

// viperKeyDelimiter marks nested values in the configuration. For example, with a key delimiter
// of ".", viper will expect `{ log { level = "something" } }` to be stored and supplied as
// `log.level : "something"`. This also implies that if there is a key like `my.key: "ok"`, viper
// becomes unable to disambiguate the key from an object key delimited using ".". The key
// delimiter is chosen as ".." so keys containing "." keep working.
const viperKeyDelimiter = ".."

//nolint:gochecknoinit
func init() {
	// The version of rootCmd is set in init() rather than when `rootCmd` is initialized,
	// because link-time variable assignments are not applied when package-scoped variables
	// are initialized.
	rootCmd.Version = version.Version
	registerConfig()
}

type configKey []string

func (c configKey) EnvName() string {
	return "DV_" + strings.ReplaceAll(strings.ToUpper(c.FlagName()), "-", "_")
}

func (c configKey) AccessPath() string {
	return strings.ReplaceAll(strings.Join(c, viperKeyDelimiter), "-", "_")
}

func (c configKey) FlagName() string {
	return strings.Join(c, "-")
}

func registerString(flags *pflag.FlagSet, name configKey, value string, usage string) {
	flags.String(name.FlagName(), value, usage)
	_ = v.BindEnv(name.AccessPath(), name.EnvName())
	_ = v.BindPFlag(name.AccessPath(), flags.Lookup(name.FlagName()))
	v.SetDefault(name.AccessPath(), value)
}

func registerBool(flags *pflag.FlagSet, name configKey, value bool, usage string) {
	flags.Bool(name.FlagName(), value, usage)
	_ = v.BindEnv(name.AccessPath(), name.EnvName())
	_ = v.BindPFlag(name.AccessPath(), flags.Lookup(name.FlagName()))
	v.SetDefault(name.AccessPath(), value)
}

func registerInt(flags *pflag.FlagSet, name configKey, value int, usage string) {
	flags.Int(name.FlagName(), value, usage)
	_ = v.BindEnv(name.AccessPath(), name.EnvName())
	_ = v.BindPFlag(name.AccessPath(), flags.Lookup(name.FlagName()))
	v.SetDefault(name.AccessPath(), value)
}

func registerInt64(flags *pflag.FlagSet, name configKey, value int64, usage string) {
	flags.Int64(name.FlagName(), value, usage)
	_ = v.BindEnv(name.AccessPath(), name.EnvName())
	_ = v.BindPFlag(name.AccessPath(), flags.Lookup(name.FlagName()))
	v.SetDefault(name.AccessPath(), value)
}

func registerFloat64(flags *pflag.FlagSet, name configKey, value float64, usage string) {
	flags.Float64(name.FlagName(), value, usage)
	_ = v.BindEnv(name.AccessPath(), name.EnvName())
	_ = v.BindPFlag(name.AccessPath(), flags.Lookup(name.FlagName()))
	v.SetDefault(name.AccessPath(), value)
}

func registerConfig() {
	v = viper.NewWithOptions(viper.KeyDelimiter(viperKeyDelimiter))
	v.SetTypeByDefaultValue(true)

	defaults := config.DefaultConfig()

	// Register flags and environment variables, and set default values for the flags.
	// The checkpoint_storage and optimizer_params objects are configured through the
	// config file only.
	flags := rootCmd.Flags()
	name := func(components ...string) configKey { return components }

	registerString(flags, name("config-file"),
		defaults.ConfigFile, "location of config file")

	registerString(flags, name("log", "level"),
		defaults.Log.Level, "choose logging level from [trace, debug, info, warn, error, fatal]")
	registerBool(flags, name("log", "color"),
		defaults.Log.Color, "output logs in color")

	registerString(flags, name("experiment-dir"),
		defaults.ExperimentDir, "directory for run artifacts (metrics, export, crash log)")
	registerString(flags, name("model"),
		defaults.Model, "model architecture to train")
	registerInt(flags, name("num-classes"),
		defaults.NumClasses, "number of output classes")
	registerString(flags, name("strategy"),
		defaults.Strategy, "distribution strategy (single, mirrored)")
	registerInt(flags, name("num-replicas"),
		defaults.NumReplicas, "number of data-parallel replicas")
	registerInt(flags, name("seed"),
		int(defaults.Seed), "seed for model init and dataset shuffling")

	registerString(flags, name("train-dataset"),
		defaults.TrainDataset, "path to the train dataset config file")
	registerString(flags, name("tune-dataset"),
		defaults.TuneDataset, "path to the tune dataset config file")

	registerInt(flags, name("batch-size"),
		defaults.BatchSize, "global batch size across all replicas")
	registerInt(flags, name("num-epochs"),
		defaults.NumEpochs, "number of training epochs")
	registerInt(flags, name("limit"),
		defaults.Limit, "cap on steps per epoch and per tune pass, for smoke tests")
	registerInt(flags, name("num-validation-examples"),
		defaults.NumValidationExamples, "tune examples per tune pass (0 uses the dataset size)")
	registerFloat64(flags, name("label-smoothing"),
		defaults.LabelSmoothing, "label smoothing factor for the cross-entropy loss")

	registerString(flags, name("optimizer"),
		defaults.Optimizer, "optimizer name (nadam, rmsprop)")

	registerFloat64(flags, name("initial-learning-rate"),
		defaults.InitialLearningRate, "learning rate before decay and warmup")
	registerFloat64(flags, name("learning-rate-decay"),
		defaults.LearningRateDecay, "staircase decay factor per decay interval")
	registerFloat64(flags, name("num-epochs-per-decay"),
		defaults.NumEpochsPerDecay, "length of one decay interval in epochs")
	registerInt64(flags, name("warmup-steps"),
		defaults.WarmupSteps, "linear warmup length in steps (0 disables warmup)")

	registerInt64(flags, name("log-every-steps"),
		defaults.LogEverySteps, "steps between train metric flushes")
	registerInt64(flags, name("tune-every-steps"),
		defaults.TuneEverySteps, "steps between tune passes (0 tunes on epoch boundaries only)")
	registerInt(flags, name("progress-every-seconds"),
		defaults.ProgressEverySeconds, "seconds between progress report lines")
	registerInt(flags, name("early-stopping-patience"),
		defaults.EarlyStoppingPatience, "non-improving tune passes before stopping (0 disables)")
	registerString(flags, name("best-checkpoint-metric"),
		defaults.BestCheckpointMetric, "tune metric that decides checkpointing and early stop")

	registerString(flags, name("metrics-gateway-url"),
		defaults.MetricsGatewayURL, "Prometheus Pushgateway base URL (empty disables pushing)")
}
