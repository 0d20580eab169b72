package outcome

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/dharsanguruparan/rehydrator/internal/model"
)

// ErrSink is wrapped by every failure to persist a routed record.
var ErrSink = errors.New("sink write failed")

// ActivitySink persists the content of an available activity. Storing the
// same id twice must leave the second content in place.
type ActivitySink interface {
	StoreActivity(ctx context.Context, id string, content json.RawMessage) error
}

// FileSink writes each activity to <dir>/<id>.json, overwriting earlier copies.
type FileSink struct {
	dir string
}

// NewFileSink constructs a FileSink rooted at dir.
func NewFileSink(dir string) *FileSink {
	return &FileSink{dir: dir}
}

// StoreActivity writes content to <dir>/<id>.json.
func (s *FileSink) StoreActivity(ctx context.Context, id string, content json.RawMessage) error {
	if err := validFileName(id); err != nil {
		return err
	}
	path := filepath.Join(s.dir, id+".json")
	if err := os.WriteFile(path, content, 0o640); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// RouterOptions configures a Router.
type RouterOptions struct {
	Sink ActivitySink
	// KeepDetailFiles writes <id>.na / <id>.old files holding "<id> => <status>".
	KeepDetailFiles bool
	NADir           string
	OldDir          string
	Logger          logrus.FieldLogger
}

// Router dispatches classified records.
type Router struct {
	sink       ActivitySink
	keepDetail bool
	naDir      string
	oldDir     string
	log        logrus.FieldLogger
}

// NewRouter constructs a Router.
func NewRouter(opts RouterOptions) *Router {
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Router{
		sink:       opts.Sink,
		keepDetail: opts.KeepDetailFiles,
		naDir:      opts.NADir,
		oldDir:     opts.OldDir,
		log:        log,
	}
}

// Route stores available content or records the id on the matching summary
// list. Any write failure is returned wrapped in ErrSink.
func (r *Router) Route(ctx context.Context, rec model.ActivityRecord, kind Kind, summary *model.RunSummary) error {
	switch kind {
	case KindAvailable:
		if r.sink == nil {
			return fmt.Errorf("%w: no activity sink configured", ErrSink)
		}
		if len(rec.Content) == 0 {
			return fmt.Errorf("%w: activity %s is available but has no content", ErrSink, rec.ID)
		}
		if err := r.sink.StoreActivity(ctx, rec.ID, rec.Content); err != nil {
			return fmt.Errorf("%w: store activity %s: %w", ErrSink, rec.ID, err)
		}
		return nil
	case KindTooOld:
		summary.AddOld(rec.ID)
		return r.writeDetail(r.oldDir, rec, ".old")
	case KindUnrecognized:
		r.log.WithFields(logrus.Fields{"id": rec.ID, "status": rec.Status}).
			Warn("unrecognized status, recording as not available")
		fallthrough
	case KindNotFound, KindInvalidFormat:
		summary.AddNotAvailable(rec.ID)
		return r.writeDetail(r.naDir, rec, ".na")
	default:
		return fmt.Errorf("route activity %s: unknown kind %d", rec.ID, kind)
	}
}

func (r *Router) writeDetail(dir string, rec model.ActivityRecord, ext string) error {
	if !r.keepDetail {
		return nil
	}
	if err := validFileName(rec.ID); err != nil {
		// The id is already on the summary list; only the detail file is skipped.
		r.log.WithField("id", rec.ID).Warnf("skip detail file: %v", err)
		return nil
	}
	path := filepath.Join(dir, rec.ID+ext)
	if err := os.WriteFile(path, []byte(rec.ID+" => "+rec.Status), 0o640); err != nil {
		return fmt.Errorf("%w: write %s: %w", ErrSink, path, err)
	}
	return nil
}

// validFileName rejects ids that would escape the output directory.
func validFileName(id string) error {
	if id == "" || id == "." || id == ".." || filepath.Base(id) != id {
		return fmt.Errorf("id %q cannot be used as a file name", id)
	}
	return nil
}
