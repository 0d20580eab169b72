package worker

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/dharsanguruparan/rehydrator/internal/ingest"
	"github.com/dharsanguruparan/rehydrator/internal/queue"
)

// Drainer runs a single pass over an in-box.
type Drainer interface {
	RunOnce(ctx context.Context, inboxDir, completedDir string) (ingest.Report, error)
}

// Processor is plugged into the asynq worker loop.
type Processor struct {
	drainer        Drainer
	inBox          string
	inBoxCompleted string
	log            logrus.FieldLogger
}

// NewProcessor constructs a worker processor. inBox and inBoxCompleted are
// used when a task does not name its own directories.
func NewProcessor(drainer Drainer, inBox, inBoxCompleted string, log logrus.FieldLogger) *Processor {
	return &Processor{drainer: drainer, inBox: inBox, inBoxCompleted: inBoxCompleted, log: log}
}

// Handler registers the drain handler.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.DrainInboxTask, p.HandleDrain)
	return mux
}

// HandleDrain processes the in-box named by the task.
func (p *Processor) HandleDrain(ctx context.Context, task *asynq.Task) error {
	payload, err := queue.DecodeDrain(task)
	if err != nil {
		// A malformed payload never becomes valid; don't retry it.
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	inBox, completed := payload.InBox, payload.InBoxCompleted
	if inBox == "" {
		inBox = p.inBox
	}
	if completed == "" {
		completed = p.inBoxCompleted
	}

	report, err := p.drainer.RunOnce(ctx, inBox, completed)
	if err != nil {
		p.log.WithError(err).WithField("in_box", inBox).Error("drain failed")
		return err
	}
	p.log.WithFields(logrus.Fields{
		"run_id":   report.RunID,
		"files":    len(report.Files),
		"skipped":  len(report.Skipped),
		"requests": report.Requests(),
	}).Info("drain finished")
	return nil
}
