package worker

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/pkg/errors"

	"github.com/logang-di/dsx-connect/internal/dclog"
	"github.com/logang-di/dsx-connect/internal/dcredis"
)

const (
	schedulerLockKey  = "worker:scheduler_master"
	schedulerLockTime = 2 * time.Minute
)

// TaskRegistrar is the slice of the task handler contract the scheduler needs.
type TaskRegistrar interface {
	GetCronTasks() []*asynq.PeriodicTaskConfig
}

// scheduler runs the periodic task manager on exactly one worker at a time. Ownership is
// a redis lock with a TTL that the holder extends; if extension fails another worker
// takes over on its next poll.
type scheduler struct {
	redis           dcredis.Client
	mutex           dcredis.Mutex
	healthCheckFunc func(isScheduler bool, err error)
	registrars      []TaskRegistrar
	mtx             sync.Mutex
	mgr             *asynq.PeriodicTaskManager
	wg              sync.WaitGroup
	done            chan struct{}
	logger          *slog.Logger
}

func newScheduler(rs dcredis.Client, hc func(isScheduler bool, err error), l *slog.Logger) *scheduler {
	return &scheduler{
		redis: rs,
		mutex: dcredis.NewMutex(rs, schedulerLockKey,
			dcredis.MutexOptionLockFor(schedulerLockTime),
			dcredis.MutexOptionDetailedLockMetadata(),
			dcredis.MutexOptionNoRetry(),
		),
		healthCheckFunc: hc,
		logger:          l,
		done:            make(chan struct{}),
	}
}

func (s *scheduler) addRegistrar(tr TaskRegistrar) *scheduler {
	s.registrars = append(s.registrars, tr)
	return s
}

func (s *scheduler) GetConfigs() ([]*asynq.PeriodicTaskConfig, error) {
	configs := make([]*asynq.PeriodicTaskConfig, 0)
	for _, tr := range s.registrars {
		configs = append(configs, tr.GetCronTasks()...)
	}

	return configs, nil
}

func (s *scheduler) tryLock(ctx context.Context) (bool, error) {
	err := s.mutex.Lock(ctx)
	if err == nil {
		return true, nil
	}

	if dcredis.MutexIsErrNotObtained(err) {
		return false, nil
	}

	return false, err
}

func (s *scheduler) extendLock(ctx context.Context) error {
	return s.mutex.Extend(ctx, schedulerLockTime)
}

func (s *scheduler) unlock(ctx context.Context) {
	if err := s.mutex.Unlock(ctx); err != nil {
		s.logger.Debug("Failed to release scheduler lock", "error", err)
	}
}

func (s *scheduler) start(ctx context.Context) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if s.mgr != nil {
		return nil
	}

	s.logger.Info("Obtained lock for scheduler")
	s.healthCheckFunc(true, nil)

	var err error
	s.mgr, err = asynq.NewPeriodicTaskManager(
		asynq.PeriodicTaskManagerOpts{
			RedisUniversalClient:       s.redis,
			PeriodicTaskConfigProvider: s,
			SyncInterval:               10 * time.Second,
			SchedulerOpts: &asynq.SchedulerOpts{
				Logger:   &asyncLogger{inner: dclog.NewBuilder(s.logger).WithComponent("asynq-scheduler").Build()},
				LogLevel: asynq.InfoLevel,
			},
		},
	)
	if err != nil {
		return errors.Wrap(err, "error creating periodic task manager")
	}

	if err := s.mgr.Start(); err != nil {
		s.healthCheckFunc(false, err)
		return err
	}

	s.healthCheckFunc(true, nil)
	s.logger.Info("Scheduler is running")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-s.done:
				s.logger.Info("Shutting down scheduler")
				s.shutdown()
				return
			case <-time.After(schedulerLockTime / 2):
				s.logger.Debug("Extending scheduler ownership lock")
				if err := s.extendLock(ctx); err != nil {
					s.logger.Info("Shutting down scheduler due to failure to extend the ownership lock", "error", err)
					s.shutdown()
					// Clears local lock state so a later poll can re-acquire.
					s.unlock(ctx)
					s.healthCheckFunc(false, nil)
					return
				}
				s.healthCheckFunc(true, nil)
			}
		}
	}()

	return nil
}

func (s *scheduler) shutdown() {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if s.mgr != nil {
		s.mgr.Shutdown()
		s.logger.Info("Async scheduler shutdown complete")
		s.mgr = nil
	}
}

func (s *scheduler) Run() error {
	ctx := context.Background()
	defer s.wg.Wait()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		select {
		case <-sigChan:
			s.logger.Info("Received termination signal")
			close(s.done)
		case <-s.done:
		}
	}()

	for {
		select {
		case <-s.done:
			s.logger.Info("Shutting down scheduler watchdog")
			s.shutdown()
			s.unlock(ctx)
			return nil
		default:
			if s.mgr == nil {
				obtained, err := s.tryLock(ctx)
				if err != nil {
					s.healthCheckFunc(false, err)
					s.logger.Error("Failed to contact redis for scheduler lock", "error", err)
				} else if obtained {
					if err := s.start(ctx); err != nil {
						s.shutdown()
						s.healthCheckFunc(false, err)
						s.unlock(ctx)
						return err
					}
				} else {
					s.healthCheckFunc(false, nil)
				}
			}

			time.Sleep(300 * time.Millisecond)
		}
	}
}
