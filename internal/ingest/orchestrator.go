// Package ingest drains the in-box: every request file is parsed, its ids
// are rehydrated batch by batch, each record is routed, and the file is
// moved to the completed area once all of its batches succeeded.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/dharsanguruparan/rehydrator/internal/idlist"
	"github.com/dharsanguruparan/rehydrator/internal/model"
	"github.com/dharsanguruparan/rehydrator/internal/outcome"
	pdfutil "github.com/dharsanguruparan/rehydrator/internal/pdf"
)

// ErrUnreadable marks an in-box file whose contents could not be read or
// extracted. Such files stay in the in-box and the run moves on.
var ErrUnreadable = errors.New("unreadable request file")

// BatchRunner requests ids in API-sized batches and yields every record.
type BatchRunner interface {
	Run(ctx context.Context, ids []string, fn func(model.ActivityRecord) error) (int, error)
}

// RecordRouter sends a classified record to its sink or summary list.
type RecordRouter interface {
	Route(ctx context.Context, rec model.ActivityRecord, kind outcome.Kind, summary *model.RunSummary) error
}

// Options configures an Orchestrator.
type Options struct {
	Requester BatchRunner
	Router    RecordRouter
	// NADir and OldDir hold the append-only ids_na.dat / ids_old.dat files.
	NADir  string
	OldDir string
	Logger logrus.FieldLogger
}

// Orchestrator processes in-box files one at a time.
type Orchestrator struct {
	requester BatchRunner
	router    RecordRouter
	naDir     string
	oldDir    string
	log       logrus.FieldLogger
}

// New constructs an Orchestrator.
func New(opts Options) *Orchestrator {
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Orchestrator{
		requester: opts.Requester,
		router:    opts.Router,
		naDir:     opts.NADir,
		oldDir:    opts.OldDir,
		log:       log,
	}
}

// FileReport counts what happened to one in-box file.
type FileReport struct {
	Name         string
	IDs          int
	Requests     int
	Available    int
	NotAvailable int
	Old          int
}

// Report summarises a RunOnce call.
type Report struct {
	RunID   string
	Files   []FileReport
	Skipped []string
}

// Requests returns the number of API calls made during the run.
func (r Report) Requests() int {
	total := 0
	for _, f := range r.Files {
		total += f.Requests
	}
	return total
}

// RunOnce processes every regular file present in inboxDir when it is
// called. Completed files are moved to completedDir under the same name.
// Transport and sink failures stop the run and leave the failing file in
// inboxDir so the next run retries it in full.
func (o *Orchestrator) RunOnce(ctx context.Context, inboxDir, completedDir string) (Report, error) {
	report := Report{RunID: uuid.NewString()}
	log := o.log.WithField("run_id", report.RunID)

	entries, err := os.ReadDir(inboxDir)
	if err != nil {
		return report, fmt.Errorf("read in-box %s: %w", inboxDir, err)
	}
	if err := os.MkdirAll(completedDir, 0o750); err != nil {
		return report, fmt.Errorf("create completed dir: %w", err)
	}

	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}
		name := entry.Name()
		flog := log.WithField("file", name)

		fr, err := o.processFile(ctx, flog, inboxDir, completedDir, name)
		if errors.Is(err, ErrUnreadable) {
			flog.WithError(err).Error("skipping request file")
			report.Skipped = append(report.Skipped, name)
			continue
		}
		if err != nil {
			flog.WithError(err).Error("request file failed, stopping run")
			return report, fmt.Errorf("process %s: %w", name, err)
		}
		report.Files = append(report.Files, fr)
		flog.WithFields(logrus.Fields{
			"ids":           fr.IDs,
			"requests":      fr.Requests,
			"available":     fr.Available,
			"not_available": fr.NotAvailable,
			"old":           fr.Old,
		}).Info("request file completed")
	}

	if len(report.Files) == 0 && len(report.Skipped) == 0 {
		log.Debug("in-box empty, nothing to do")
	}
	return report, nil
}

func (o *Orchestrator) processFile(ctx context.Context, log logrus.FieldLogger, inboxDir, completedDir, name string) (FileReport, error) {
	fr := FileReport{Name: name}
	src := filepath.Join(inboxDir, name)

	text, err := readRequestFile(src)
	if err != nil {
		return fr, err
	}
	ids := idlist.Parse(strings.TrimSpace(text))
	fr.IDs = len(ids)
	log.WithField("ids", len(ids)).Info("processing request file")

	summary := &model.RunSummary{}
	fr.Requests, err = o.requester.Run(ctx, ids, func(rec model.ActivityRecord) error {
		kind := outcome.Classify(rec)
		if kind == outcome.KindAvailable {
			fr.Available++
		}
		return o.router.Route(ctx, rec, kind, summary)
	})
	if err != nil {
		return fr, err
	}
	fr.NotAvailable = len(summary.NotAvailableIDs)
	fr.Old = len(summary.OldIDs)

	if err := moveFile(src, filepath.Join(completedDir, name)); err != nil {
		return fr, fmt.Errorf("move to completed: %w", err)
	}
	if err := appendSummary(filepath.Join(o.naDir, SummaryNAFile), summary.NotAvailableIDs); err != nil {
		return fr, err
	}
	if err := appendSummary(filepath.Join(o.oldDir, SummaryOldFile), summary.OldIDs); err != nil {
		return fr, err
	}
	return fr, nil
}

func readRequestFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnreadable, err)
	}
	if !pdfutil.IsPDF(data) {
		return string(data), nil
	}
	pages, err := pdfutil.Pages(data)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnreadable, err)
	}
	// One line per page keeps ids on different pages from running together.
	return strings.Join(pages, "\n"), nil
}
