package coordinator

import (
	"context"
	stderrors "errors"
	"strings"

	engerrors "github.com/kairoai/engine/core/errors"
	"github.com/kairoai/engine/core/scheduler"
	"github.com/kairoai/engine/core/worker"
)

// recover applies exactly one recovery strategy after retries are exhausted:
// an alternate worker with overlapping capability when one is registered,
// otherwise a simplified restatement of the task on the same worker. Success
// through recovery marks the unit adapted.
func (c *Coordinator) recover(ctx context.Context, task scheduler.Task, req worker.Request, failed worker.Worker, lastErr error, attempts int) outcome {
	terminal := func() outcome {
		return outcome{
			err: &engerrors.WorkerExecutionError{
				WorkerID:  failed.ID(),
				TaskID:    task.ID,
				Attempts:  attempts,
				Retryable: false,
				Err:       lastErr,
			},
			attempts: attempts,
			workerID: failed.ID(),
		}
	}

	// Validation failures and caller cancellation are not recoverable.
	var ve *engerrors.ValidationError
	if ctx.Err() != nil || stderrors.As(lastErr, &ve) {
		return terminal()
	}

	if alt, ok := c.registry.Alternate(req.Capability, failed.ID()); ok {
		c.logger.Info("recovery: alternate worker", "task_id", task.ID, "from", failed.ID(), "to", alt.ID())
		result, err := c.invoke(ctx, alt, req, task)
		attempts++
		if err == nil {
			return outcome{
				result:       result,
				attempts:     attempts,
				workerID:     alt.ID(),
				adapted:      true,
				fromStrategy: "worker:" + failed.ID(),
				toStrategy:   "alternate_worker:" + alt.ID(),
				adaptReason:  lastErr.Error(),
			}
		}
		lastErr = err
		return terminal()
	}

	simplified := req
	simplified.Description = simplifyDescription(req.Description)
	c.logger.Info("recovery: simplified restatement", "task_id", task.ID, "worker", failed.ID())
	result, err := c.invoke(ctx, failed, simplified, task)
	attempts++
	if err == nil {
		return outcome{
			result:       result,
			attempts:     attempts,
			workerID:     failed.ID(),
			adapted:      true,
			fromStrategy: "full_task",
			toStrategy:   "simplified_restatement",
			adaptReason:  lastErr.Error(),
		}
	}
	lastErr = err
	return terminal()
}

// simplifyDescription reduces a task to its leading clause so a struggling
// worker gets a smaller ask.
func simplifyDescription(description string) string {
	simplified := description
	if idx := strings.IndexAny(simplified, ".;\n"); idx > 0 {
		simplified = simplified[:idx]
	}
	const maxLen = 140
	if len(simplified) > maxLen {
		if cut := strings.LastIndex(simplified[:maxLen], " "); cut > 0 {
			simplified = simplified[:cut]
		} else {
			simplified = simplified[:maxLen]
		}
	}
	return "Do only the essential part of this task: " + strings.TrimSpace(simplified)
}
