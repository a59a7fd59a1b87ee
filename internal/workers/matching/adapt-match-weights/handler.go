// internal/workers/matching/adapt-match-weights/handler.go
package adaptmatchweights

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"carejoa-matching/internal/common/errors"
	"carejoa-matching/internal/common/logger"
	"carejoa-matching/internal/common/metrics"
	"carejoa-matching/internal/matching"
)

const TaskType = "adapt-match-weights"

// Adapter is the administrative side of the adaptation scheduler.
type Adapter interface {
	Trigger(ctx context.Context) (*matching.AdaptationOutcome, error)
	Rollback(ctx context.Context, version int64) (*matching.AdaptationOutcome, error)
}

type Handler struct {
	config       *Config
	adapter      Adapter
	errorHandler *errors.ErrorHandler
	logger       logger.Logger
}

func NewHandler(config *Config, adapter Adapter, log logger.Logger) (*Handler, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration for %s: %w", TaskType, err)
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		adapter:      adapter,
		errorHandler: errors.NewErrorHandler(log),
		logger:       log,
	}, nil
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	startTime := time.Now()
	metrics.WorkerJobsActive.WithLabelValues(TaskType).Inc()
	defer metrics.WorkerJobsActive.WithLabelValues(TaskType).Dec()

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":             job.GetKey(),
		"processInstanceKey": job.GetProcessInstanceKey(),
	})

	input, err := ParseInput(job.GetVariables())
	if err != nil {
		h.failJob(ctx, client, job, err)
		return
	}

	output, err := h.Execute(ctx, input)
	if err != nil {
		h.failJob(ctx, client, job, err)
		return
	}

	h.completeJob(ctx, client, job, output)
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(startTime).Seconds())
}

// ParseInput accepts an empty variable set as a plain adaptation run.
func ParseInput(variables string) (*Input, error) {
	if variables == "" {
		variables = "{}"
	}
	var doc map[string]interface{}
	if err := json.Unmarshal([]byte(variables), &doc); err != nil {
		return nil, errors.NewInputParsingError(err)
	}
	if err := inputSchema.Validate(doc).Err(); err != nil {
		return nil, err
	}

	var input Input
	if err := json.Unmarshal([]byte(variables), &input); err != nil {
		return nil, errors.NewInputParsingError(err)
	}
	if input.Action == "" {
		input.Action = ActionAdapt
	}
	return &input, nil
}

// Execute runs one adaptation cycle or a rollback. A skipped cycle is a
// successful job: the active profile stays in place and the reason is
// returned to the process.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	var (
		outcome *matching.AdaptationOutcome
		err     error
	)
	switch input.Action {
	case ActionAdapt, "":
		outcome, err = h.adapter.Trigger(ctx)
	case ActionRollback:
		if input.RollbackVersion <= 0 {
			return nil, errors.NewValidationError("rollbackVersion", "is required for rollback")
		}
		outcome, err = h.adapter.Rollback(ctx, input.RollbackVersion)
	default:
		return nil, errors.NewValidationError("action", fmt.Sprintf("unsupported action %q", input.Action))
	}
	if err != nil {
		return nil, err
	}

	action := input.Action
	if action == "" {
		action = ActionAdapt
	}
	h.logger.Info("weight adaptation job finished", map[string]interface{}{
		"action":          action,
		"published":       outcome.Published,
		"previousVersion": outcome.PreviousVersion,
		"version":         outcome.Version,
		"reason":          outcome.Reason,
	})

	return &Output{
		Action:          action,
		Published:       outcome.Published,
		PreviousVersion: outcome.PreviousVersion,
		Version:         outcome.Version,
		Reason:          outcome.Reason,
		Samples:         outcome.Samples,
		Weights:         outcome.Weights,
	}, nil
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.GetKey()).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"jobKey": job.GetKey(),
			"error":  err,
		})
		return
	}
	if _, err := cmd.Send(ctx); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"jobKey": job.GetKey(),
			"error":  err,
		})
	}
}

func (h *Handler) failJob(ctx context.Context, client worker.JobClient, job entities.Job, err error) {
	code := h.errorHandler.HandleJobError(ctx, client, job, err)
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(code)).Inc()
}

func (h *Handler) GetTaskType() string {
	return TaskType
}

func (h *Handler) IsEnabled() bool {
	return h.config.Enabled
}
