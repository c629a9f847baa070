package train

import (
	"context"
	"os"
	"path/filepath"
	"runtime"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/lucasbrambrink/deepvariant/internal/config"
	"github.com/lucasbrambrink/deepvariant/pkg/logger"
)

// Supervisor runs one training process end to end: it assigns the run its ID,
// drives the trainer, and when the run dies it preserves the evidence and
// classifies the failure for the scheduler.
type Supervisor struct {
	version  string
	logStore *logger.LogBuffer
	conf     *config.Config

	log *log.Entry
}

// NewSupervisor creates the supervisor and applies the logging configuration.
func NewSupervisor(version string, logStore *logger.LogBuffer, conf *config.Config) *Supervisor {
	logger.SetLogrus(conf.Log)
	return &Supervisor{
		version:  version,
		logStore: logStore,
		conf:     conf,
		log:      log.WithField("component", "supervisor"),
	}
}

// Run executes the training run. Transient errors are surfaced to the caller
// still marked, so the process can exit with the retryable code.
func (s *Supervisor) Run(ctx context.Context) error {
	runID := uuid.New().String()
	runLog := s.log.WithField("run-id", runID)
	runLog.Infof("deepvariant train %s (built with %s)", s.version, runtime.Version())

	if err := s.runTraining(ctx, runID); err != nil {
		s.dumpCrashLog(runLog)
		if IsTransient(err) {
			runLog.WithError(err).Warn("transient backend failure, signaling restart")
		}
		return err
	}
	runLog.Info("training complete")
	return nil
}

func (s *Supervisor) runTraining(ctx context.Context, runID string) error {
	trainer, err := NewTrainer(ctx, s.conf, runID)
	if err != nil {
		return err
	}
	runErr := trainer.Run(ctx)
	closeErr := trainer.Close()
	if runErr != nil {
		return runErr
	}
	return closeErr
}

// dumpCrashLog writes the buffered log history of the dying run into the
// experiment directory, where it survives the pod or process teardown.
func (s *Supervisor) dumpCrashLog(runLog *log.Entry) {
	path := filepath.Join(s.conf.ExperimentDir, "crash.log")
	f, err := os.Create(path)
	if err != nil {
		runLog.WithError(err).Warn("unable to write crash log")
		return
	}
	defer func() {
		_ = f.Close()
	}()
	if err := s.logStore.Dump(f); err != nil {
		runLog.WithError(err).Warn("unable to write crash log")
		return
	}
	runLog.Infof("wrote crash log to %s", path)
}
