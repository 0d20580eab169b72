package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// DrainInboxTask asks a worker to process everything in the in-box.
	DrainInboxTask = "inbox:drain"
	// Queue is the only queue the worker listens on.
	Queue = "rehydration"
)

// DrainPayload names the directories a drain works on. Empty values fall
// back to the worker's configuration.
type DrainPayload struct {
	InBox          string `json:"in_box,omitempty"`
	InBoxCompleted string `json:"in_box_completed,omitempty"`
}

// NewDrainTask builds a drain task. Only one drain per in-box may be pending
// at a time; a failed drain leaves its file in place so retries are safe.
func NewDrainTask(payload DrainPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return asynq.NewTask(DrainInboxTask, data,
		asynq.Queue(Queue),
		asynq.MaxRetry(3),
		asynq.Unique(10*time.Minute),
	), nil
}

// EnqueueDrain enqueues an in-box drain. A drain that is already pending is
// not an error.
func EnqueueDrain(ctx context.Context, client *asynq.Client, payload DrainPayload) error {
	task, err := NewDrainTask(payload)
	if err != nil {
		return err
	}
	if _, err := client.EnqueueContext(ctx, task); err != nil {
		if errors.Is(err, asynq.ErrDuplicateTask) {
			return nil
		}
		return fmt.Errorf("enqueue drain task: %w", err)
	}
	return nil
}

// DecodeDrain reads the payload of a drain task.
func DecodeDrain(task *asynq.Task) (DrainPayload, error) {
	var payload DrainPayload
	if len(task.Payload()) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return payload, fmt.Errorf("decode payload: %w", err)
	}
	return payload, nil
}
