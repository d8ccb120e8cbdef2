package migration

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

const (
	schedulerRequiresLoggerMessageConstant    = "scheduler requires logger"
	schedulerRequiresWorkerMessageConstant    = "scheduler requires worker function"
	invalidWorkerLimitMessageTemplateConstant = "worker limit must be positive, got %d"
	repositoryFailedLogMessageConstant        = "repository migration failed"
	repositoryPanickedLogMessageConstant      = "repository migration panicked"
	schedulerDispatchAbortedMessageConstant   = "scheduler dispatch aborted"
	panicFailureMessageTemplateConstant       = "%s: panic: %v"
	logFieldSchedulerSlugConstant             = "slug"
	logFieldSchedulerWorkerLimitNameConstant  = "worker_limit"
	logFieldRepositoryCountConstant           = "repository_count"
	logFieldPanicValueConstant                = "panic_value"
	schedulerStartedLogMessageConstant        = "migration scheduler started"
)

// WorkerFunction migrates a single repository.
type WorkerFunction func(executionContext context.Context, descriptor RepositoryDescriptor) error

// Scheduler fans repositories out over a bounded pool of workers. A failing
// repository is recorded and does not stop the others.
type Scheduler struct {
	logger      *zap.Logger
	workerLimit int64
	worker      WorkerFunction
}

// NewScheduler validates inputs and constructs a Scheduler.
func NewScheduler(logger *zap.Logger, workerLimit int, worker WorkerFunction) (*Scheduler, error) {
	if logger == nil {
		return nil, fmt.Errorf(schedulerRequiresLoggerMessageConstant)
	}
	if worker == nil {
		return nil, fmt.Errorf(schedulerRequiresWorkerMessageConstant)
	}
	if workerLimit <= 0 {
		return nil, fmt.Errorf(invalidWorkerLimitMessageTemplateConstant, workerLimit)
	}
	return &Scheduler{logger: logger, workerLimit: int64(workerLimit), worker: worker}, nil
}

// Run processes every descriptor and returns the per-repository failures.
// It blocks until all dispatched workers have finished.
func (scheduler *Scheduler) Run(executionContext context.Context, descriptors []RepositoryDescriptor) []error {
	scheduler.logger.Info(
		schedulerStartedLogMessageConstant,
		zap.Int64(logFieldSchedulerWorkerLimitNameConstant, scheduler.workerLimit),
		zap.Int(logFieldRepositoryCountConstant, len(descriptors)),
	)

	workerSemaphore := semaphore.NewWeighted(scheduler.workerLimit)
	var waitGroup sync.WaitGroup
	var failureMutex sync.Mutex
	var failures []error

	recordFailure := func(failure error) {
		failureMutex.Lock()
		defer failureMutex.Unlock()
		failures = append(failures, failure)
	}

	for _, descriptor := range descriptors {
		if acquireError := workerSemaphore.Acquire(executionContext, 1); acquireError != nil {
			scheduler.logger.Warn(schedulerDispatchAbortedMessageConstant, zap.Error(acquireError))
			recordFailure(acquireError)
			break
		}

		waitGroup.Add(1)
		go func(descriptor RepositoryDescriptor) {
			defer waitGroup.Done()
			defer workerSemaphore.Release(1)
			defer func() {
				if recovered := recover(); recovered != nil {
					scheduler.logger.Error(
						repositoryPanickedLogMessageConstant,
						zap.String(logFieldSchedulerSlugConstant, descriptor.Slug()),
						zap.Any(logFieldPanicValueConstant, recovered),
					)
					recordFailure(fmt.Errorf(panicFailureMessageTemplateConstant, descriptor.Slug(), recovered))
				}
			}()

			if workerError := scheduler.worker(executionContext, descriptor); workerError != nil {
				scheduler.logger.Warn(
					repositoryFailedLogMessageConstant,
					zap.String(logFieldSchedulerSlugConstant, descriptor.Slug()),
					zap.Error(workerError),
				)
				recordFailure(workerError)
			}
		}(descriptor)
	}

	waitGroup.Wait()
	return failures
}
