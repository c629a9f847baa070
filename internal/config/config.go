// Package config holds the training driver configuration.
package config

import (
	"encoding/json"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/lucasbrambrink/deepvariant/pkg/check"
	"github.com/lucasbrambrink/deepvariant/pkg/logger"
	"github.com/lucasbrambrink/deepvariant/pkg/model"
	"github.com/lucasbrambrink/deepvariant/pkg/modeling"
	"github.com/lucasbrambrink/deepvariant/pkg/optimizer"
	"github.com/lucasbrambrink/deepvariant/pkg/ptrs"
)

// Distribution strategies accepted by the driver.
const (
	StrategySingle   = "single"
	StrategyMirrored = "mirrored"
)

// Strategies lists the supported distribution strategies.
var Strategies = []string{StrategySingle, StrategyMirrored}

// DefaultConfig returns the default configuration of the training driver.
func DefaultConfig() *Config {
	return &Config{
		ConfigFile: "",
		Log:        *logger.DefaultConfig(),

		ExperimentDir: "",
		Model:         "linear",
		NumClasses:    3,
		Strategy:      StrategySingle,
		NumReplicas:   1,
		Seed:          42,

		TrainDataset: "",
		TuneDataset:  "",

		BatchSize:             32,
		NumEpochs:             10,
		Limit:                 0,
		NumValidationExamples: 0,
		LabelSmoothing:        0.01,

		Optimizer:       "nadam",
		OptimizerParams: optimizer.DefaultConfig(),

		InitialLearningRate: 0.001,
		LearningRateDecay:   0.947,
		NumEpochsPerDecay:   2.0,
		WarmupSteps:         0,

		LogEverySteps:         100,
		TuneEverySteps:        0,
		ProgressEverySeconds:  30,
		EarlyStoppingPatience: 0,
		BestCheckpointMetric:  "tune/f1_weighted",

		CheckpointStorage: model.CheckpointStorageConfig{
			MaxToKeep: model.DefaultMaxToKeep,
			SharedFSConfig: &model.SharedFSConfig{
				HostPath:    "/tmp",
				StoragePath: ptrs.Ptr("deepvariant-checkpoints"),
			},
		},

		MetricsGatewayURL: "",
	}
}

// Config is the configuration of the training driver.
//
// It is populated, in the following order, by the driver configuration file,
// environment variables and command line arguments.
type Config struct {
	ConfigFile string        `json:"config_file"`
	Log        logger.Config `json:"log"`

	ExperimentDir string `json:"experiment_dir"`
	Model         string `json:"model"`
	NumClasses    int    `json:"num_classes"`
	Strategy      string `json:"strategy"`
	NumReplicas   int    `json:"num_replicas"`
	Seed          uint32 `json:"seed"`

	TrainDataset string `json:"train_dataset"`
	TuneDataset  string `json:"tune_dataset"`

	BatchSize             int     `json:"batch_size"`
	NumEpochs             int     `json:"num_epochs"`
	Limit                 int     `json:"limit"`
	NumValidationExamples int     `json:"num_validation_examples"`
	LabelSmoothing        float64 `json:"label_smoothing"`

	Optimizer       string           `json:"optimizer"`
	OptimizerParams optimizer.Config `json:"optimizer_params"`

	InitialLearningRate float64 `json:"initial_learning_rate"`
	LearningRateDecay   float64 `json:"learning_rate_decay"`
	NumEpochsPerDecay   float64 `json:"num_epochs_per_decay"`
	WarmupSteps         int64   `json:"warmup_steps"`

	LogEverySteps         int64  `json:"log_every_steps"`
	TuneEverySteps        int64  `json:"tune_every_steps"`
	ProgressEverySeconds  int    `json:"progress_every_seconds"`
	EarlyStoppingPatience int    `json:"early_stopping_patience"`
	BestCheckpointMetric  string `json:"best_checkpoint_metric"`

	CheckpointStorage model.CheckpointStorageConfig `json:"checkpoint_storage"`

	MetricsGatewayURL string `json:"metrics_gateway_url"`
}

// Printable returns the configuration as JSON with secrets hidden.
func (c Config) Printable() ([]byte, error) {
	const hiddenValue = "********"
	if s3 := c.CheckpointStorage.S3Config; s3 != nil {
		printable := *s3
		if printable.AccessKey != nil {
			printable.AccessKey = ptrs.Ptr(hiddenValue)
		}
		if printable.SecretKey != nil {
			printable.SecretKey = ptrs.Ptr(hiddenValue)
		}
		c.CheckpointStorage.S3Config = &printable
	}

	optJSON, err := json.Marshal(c)
	if err != nil {
		return nil, errors.Wrap(err, "unable to convert config to JSON")
	}
	return optJSON, nil
}

// Resolve resolves the values in the configuration.
func (c *Config) Resolve() error {
	if c.NumReplicas == 0 {
		c.NumReplicas = 1
	}

	if c.ExperimentDir != "" {
		dir, err := filepath.Abs(c.ExperimentDir)
		if err != nil {
			return err
		}
		c.ExperimentDir = dir
	}

	return nil
}

// Validate implements the check.Validatable interface.
func (c Config) Validate() []error {
	errs := []error{
		check.NotEmpty(c.ExperimentDir, "experiment_dir must be set"),
		check.In(c.Model, modeling.Names, "unsupported model"),
		check.GreaterThanOrEqualTo(c.NumClasses, 2, "num_classes must be at least 2"),
		check.In(c.Strategy, Strategies, "unsupported strategy"),
		check.GreaterThanOrEqualTo(c.NumReplicas, 1, "num_replicas must be at least 1"),
		check.NotEmpty(c.TrainDataset, "train_dataset must be set"),
		check.NotEmpty(c.TuneDataset, "tune_dataset must be set"),
		check.GreaterThanOrEqualTo(c.BatchSize, 1, "batch_size must be at least 1"),
		check.GreaterThanOrEqualTo(c.NumEpochs, 1, "num_epochs must be at least 1"),
		check.GreaterThanOrEqualTo(c.Limit, 0, "limit must not be negative"),
		check.GreaterThanOrEqualTo(c.NumValidationExamples, 0,
			"num_validation_examples must not be negative"),
		check.BetweenInclusive(c.LabelSmoothing, 0, 0.5, "label_smoothing must be in [0, 0.5]"),
		check.In(c.Optimizer, optimizer.Names, "unsupported optimizer"),
		check.GreaterThan(c.InitialLearningRate, 0.0, "initial_learning_rate must be positive"),
		check.GreaterThan(c.LearningRateDecay, 0.0, "learning_rate_decay must be positive"),
		check.LessThanOrEqualTo(c.LearningRateDecay, 1.0, "learning_rate_decay must not exceed 1"),
		check.GreaterThan(c.NumEpochsPerDecay, 0.0, "num_epochs_per_decay must be positive"),
		check.GreaterThanOrEqualTo(c.WarmupSteps, 0, "warmup_steps must not be negative"),
		check.GreaterThanOrEqualTo(c.LogEverySteps, 1, "log_every_steps must be at least 1"),
		check.GreaterThanOrEqualTo(c.TuneEverySteps, 0, "tune_every_steps must not be negative"),
		check.GreaterThanOrEqualTo(c.ProgressEverySeconds, 1,
			"progress_every_seconds must be at least 1"),
		check.GreaterThanOrEqualTo(c.EarlyStoppingPatience, 0,
			"early_stopping_patience must not be negative"),
		check.True(strings.HasPrefix(c.BestCheckpointMetric, "tune/"),
			"best_checkpoint_metric must name a tune metric, e.g. tune/f1_weighted"),
	}
	if c.Strategy == StrategySingle {
		errs = append(errs, check.Equal(c.NumReplicas, 1,
			"the single strategy runs exactly one replica"))
	}
	return errs
}
