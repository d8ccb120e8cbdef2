// Package retry provides a bounded retry executor with exponential backoff and jitter.
package retry

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultAttemptLimitConstant is the number of attempts performed when no limit is configured.
	DefaultAttemptLimitConstant = 5
	// DefaultBaseDelayConstant is the backoff base applied before the second attempt.
	DefaultBaseDelayConstant = 2 * time.Second

	maximumJitterDurationConstant              = 2 * time.Second
	exhaustedErrorTemplateConstant             = "%s failed after %d attempts: %s"
	attemptFailedLogMessageConstant            = "attempt failed, retrying"
	logFieldOperationConstant                  = "operation"
	logFieldAttemptConstant                    = "attempt"
	logFieldAttemptLimitConstant               = "attempt_limit"
	logFieldBackoffDelayConstant               = "backoff_delay"
	loggerRequiredMessageConstant              = "retry executor requires logger"
	invalidAttemptLimitMessageTemplateConstant = "retry executor requires a positive attempt limit, got %d"
)

// ExhaustedError reports that every attempt of an operation failed. It unwraps to the final failure.
type ExhaustedError struct {
	OperationName string
	AttemptCount  int
	LastFailure   error
}

// Error implements the error interface.
func (failure ExhaustedError) Error() string {
	return fmt.Sprintf(exhaustedErrorTemplateConstant, failure.OperationName, failure.AttemptCount, failure.LastFailure)
}

// Unwrap exposes the final attempt's failure verbatim.
func (failure ExhaustedError) Unwrap() error {
	return failure.LastFailure
}

// SleepFunction pauses between attempts and honors context cancellation.
type SleepFunction func(sleepContext context.Context, delay time.Duration) error

// JitterFunction returns a random delay in [0, maximum).
type JitterFunction func(maximum time.Duration) time.Duration

// ExecutorOptions configures an Executor.
type ExecutorOptions struct {
	AttemptLimit int
	BaseDelay    time.Duration
	Sleep        SleepFunction
	Jitter       JitterFunction
}

// Executor re-runs failing operations with exponential backoff plus jitter.
type Executor struct {
	logger       *zap.Logger
	attemptLimit int
	baseDelay    time.Duration
	sleep        SleepFunction
	jitter       JitterFunction
}

// NewExecutor constructs an Executor, filling unset options with defaults.
func NewExecutor(logger *zap.Logger, options ExecutorOptions) (*Executor, error) {
	if logger == nil {
		return nil, fmt.Errorf(loggerRequiredMessageConstant)
	}
	if options.AttemptLimit == 0 {
		options.AttemptLimit = DefaultAttemptLimitConstant
	}
	if options.AttemptLimit < 0 {
		return nil, fmt.Errorf(invalidAttemptLimitMessageTemplateConstant, options.AttemptLimit)
	}
	if options.BaseDelay <= 0 {
		options.BaseDelay = DefaultBaseDelayConstant
	}
	if options.Sleep == nil {
		options.Sleep = contextAwareSleep
	}
	if options.Jitter == nil {
		options.Jitter = randomJitter
	}
	return &Executor{
		logger:       logger,
		attemptLimit: options.AttemptLimit,
		baseDelay:    options.BaseDelay,
		sleep:        options.Sleep,
		jitter:       options.Jitter,
	}, nil
}

// Execute runs the supplied operation until it succeeds or the attempt limit is reached.
// The returned ExhaustedError wraps the final attempt's error without alteration.
func (executor *Executor) Execute(executionContext context.Context, operationName string, operation func(context.Context) error) error {
	var lastFailure error
	for attemptNumber := 1; attemptNumber <= executor.attemptLimit; attemptNumber++ {
		lastFailure = operation(executionContext)
		if lastFailure == nil {
			return nil
		}
		if attemptNumber == executor.attemptLimit {
			break
		}

		backoffDelay := executor.computeBackoffDelay(attemptNumber)
		executor.logger.Warn(
			attemptFailedLogMessageConstant,
			zap.String(logFieldOperationConstant, operationName),
			zap.Int(logFieldAttemptConstant, attemptNumber),
			zap.Int(logFieldAttemptLimitConstant, executor.attemptLimit),
			zap.Duration(logFieldBackoffDelayConstant, backoffDelay),
			zap.Error(lastFailure),
		)
		if sleepError := executor.sleep(executionContext, backoffDelay); sleepError != nil {
			return sleepError
		}
	}
	return ExhaustedError{OperationName: operationName, AttemptCount: executor.attemptLimit, LastFailure: lastFailure}
}

func (executor *Executor) computeBackoffDelay(attemptNumber int) time.Duration {
	exponentialDelay := executor.baseDelay << (attemptNumber - 1)
	return exponentialDelay + executor.jitter(maximumJitterDurationConstant)
}

func contextAwareSleep(sleepContext context.Context, delay time.Duration) error {
	delayTimer := time.NewTimer(delay)
	defer delayTimer.Stop()
	select {
	case <-sleepContext.Done():
		return sleepContext.Err()
	case <-delayTimer.C:
		return nil
	}
}

func randomJitter(maximum time.Duration) time.Duration {
	if maximum <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(maximum)))
}
