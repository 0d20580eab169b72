package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	// Rehydration has no matching rules; requested ids stand in for them.
	rehydrationRule = "rehydration"
	publisherName   = "Twitter"
)

// Execer is the subset of pgxpool.Pool used by the repository.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Activity represents a row in the activities table.
type Activity struct {
	NativeID   int64
	PostedTime time.Time
	Content    string
	Body       string
	RuleValue  string
	RuleTag    string
	Publisher  string
	JobID      string
	Latitude   float64
	Longitude  float64
}

// ActivityRepository upserts rehydrated activities keyed by native id.
type ActivityRepository struct {
	db    Execer
	jobID string
}

// NewActivityRepository constructs a repository. jobID is stored with every
// row written through StoreActivity and may be empty.
func NewActivityRepository(db Execer, jobID string) *ActivityRepository {
	return &ActivityRepository{db: db, jobID: jobID}
}

// Upsert inserts the activity or replaces the row with the same native id.
func (r *ActivityRepository) Upsert(ctx context.Context, a Activity) error {
	now := time.Now().UTC()
	_, err := r.db.Exec(ctx, `
		INSERT INTO activities (native_id, posted_time, content, body, rule_value, rule_tag, publisher, job_uuid, latitude, longitude, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$11)
		ON CONFLICT (native_id) DO UPDATE SET
			posted_time = EXCLUDED.posted_time,
			content = EXCLUDED.content,
			body = EXCLUDED.body,
			rule_value = EXCLUDED.rule_value,
			rule_tag = EXCLUDED.rule_tag,
			publisher = EXCLUDED.publisher,
			job_uuid = EXCLUDED.job_uuid,
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			updated_at = EXCLUDED.updated_at
	`, a.NativeID, a.PostedTime, a.Content, a.Body, a.RuleValue, a.RuleTag, a.Publisher, a.JobID, a.Latitude, a.Longitude, now)
	if err != nil {
		return fmt.Errorf("upsert activity %d: %w", a.NativeID, err)
	}
	return nil
}

// StoreActivity maps the activity JSON to a row and upserts it.
func (r *ActivityRepository) StoreActivity(ctx context.Context, id string, content json.RawMessage) error {
	a, err := ActivityFromContent(content, r.jobID)
	if err != nil {
		return fmt.Errorf("map activity %s: %w", id, err)
	}
	return r.Upsert(ctx, a)
}

type activityPayload struct {
	ID         string `json:"id"`
	PostedTime string `json:"postedTime"`
	Body       string `json:"body"`
	Geo        *struct {
		Type        string          `json:"type"`
		Coordinates json.RawMessage `json:"coordinates"`
	} `json:"geo"`
}

// ActivityFromContent extracts the promoted columns from an Activity Streams
// payload. Only a root Point geo yields coordinates; anything else is 0/0.
func ActivityFromContent(content json.RawMessage, jobID string) (Activity, error) {
	var p activityPayload
	if err := json.Unmarshal(content, &p); err != nil {
		return Activity{}, fmt.Errorf("decode activity: %w", err)
	}
	nativeID, err := NativeID(p.ID)
	if err != nil {
		return Activity{}, err
	}
	posted, err := time.Parse(time.RFC3339, p.PostedTime)
	if err != nil {
		return Activity{}, fmt.Errorf("parse postedTime %q: %w", p.PostedTime, err)
	}

	a := Activity{
		NativeID:   nativeID,
		PostedTime: posted.UTC(),
		Content:    string(content),
		Body:       p.Body,
		RuleValue:  rehydrationRule,
		RuleTag:    rehydrationRule,
		Publisher:  publisherName,
		JobID:      jobID,
	}
	if p.Geo != nil && p.Geo.Type == "Point" {
		var coords []float64
		if err := json.Unmarshal(p.Geo.Coordinates, &coords); err == nil && len(coords) == 2 {
			// Point coordinates are ordered latitude, longitude.
			a.Latitude, a.Longitude = coords[0], coords[1]
		}
	}
	return a, nil
}

// NativeID parses the number after the last ':' of a composite activity id
// such as "tag:search.twitter.com,2005:198308769506136064".
func NativeID(id string) (int64, error) {
	tail := id[strings.LastIndex(id, ":")+1:]
	n, err := strconv.ParseInt(tail, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("native id from %q: %w", id, err)
	}
	return n, nil
}
