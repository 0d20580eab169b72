package repository

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleActivity = `{
	"id": "tag:search.twitter.com,2005:311555603342430208",
	"objectType": "activity",
	"postedTime": "2013-03-12T19:13:38.000Z",
	"body": "It's hard to go to class when the weather is so nice \\o/",
	"geo": {"type": "Point", "coordinates": [38.1341, -85.8953]},
	"location": {"geo": {"type": "Polygon", "coordinates": [[[-85.95, 37.99], [-85.70, 37.99]]]}}
}`

func TestNativeID(t *testing.T) {
	id, err := NativeID("tag:search.twitter.com,2005:198308769506136064")
	require.NoError(t, err)
	assert.Equal(t, int64(198308769506136064), id)

	id, err = NativeID("311555603342430208")
	require.NoError(t, err)
	assert.Equal(t, int64(311555603342430208), id)

	_, err = NativeID("tag:example.com,2005:abc")
	assert.Error(t, err)
}

func TestActivityFromContent(t *testing.T) {
	a, err := ActivityFromContent(json.RawMessage(sampleActivity), "job-1")
	require.NoError(t, err)

	assert.Equal(t, int64(311555603342430208), a.NativeID)
	assert.Equal(t, time.Date(2013, 3, 12, 19, 13, 38, 0, time.UTC), a.PostedTime)
	// Quotes and backslashes are kept verbatim; the values are bound as parameters.
	assert.Equal(t, `It's hard to go to class when the weather is so nice \o/`, a.Body)
	assert.Equal(t, sampleActivity, a.Content)
	assert.Equal(t, "rehydration", a.RuleValue)
	assert.Equal(t, "rehydration", a.RuleTag)
	assert.Equal(t, "Twitter", a.Publisher)
	assert.Equal(t, "job-1", a.JobID)
	assert.InDelta(t, 38.1341, a.Latitude, 1e-9)
	assert.InDelta(t, -85.8953, a.Longitude, 1e-9)
}

func TestActivityFromContentWithoutPointGeo(t *testing.T) {
	content := `{"id":"tag:search.twitter.com,2005:1","postedTime":"2013-03-12T19:13:38.000Z","body":"x",
		"geo":{"type":"Polygon","coordinates":[[[-85.9,37.9],[-85.7,37.9]]]}}`
	a, err := ActivityFromContent(json.RawMessage(content), "")
	require.NoError(t, err)
	assert.Zero(t, a.Latitude)
	assert.Zero(t, a.Longitude)
}

func TestActivityFromContentErrors(t *testing.T) {
	for name, content := range map[string]string{
		"not json":         `{`,
		"bad id":           `{"id":"tag:x,2005:abc","postedTime":"2013-03-12T19:13:38.000Z"}`,
		"bad posted time":  `{"id":"tag:x,2005:1","postedTime":"yesterday"}`,
		"missing all data": `{}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ActivityFromContent(json.RawMessage(content), "")
			assert.Error(t, err)
		})
	}
}

func TestStoreActivityUpserts(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewActivityRepository(mock, "job-1")

	mock.ExpectExec("INSERT INTO activities").
		WithArgs(
			int64(311555603342430208),
			pgxmock.AnyArg(),
			sampleActivity,
			`It's hard to go to class when the weather is so nice \o/`,
			"rehydration",
			"rehydration",
			"Twitter",
			"job-1",
			38.1341,
			-85.8953,
			pgxmock.AnyArg(),
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.StoreActivity(context.Background(), "311555603342430208", json.RawMessage(sampleActivity)))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewActivityRepository(mock, "")
	boom := errors.New("connection refused")
	mock.ExpectExec("INSERT INTO activities").
		WithArgs(
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
		).
		WillReturnError(boom)

	err = repo.Upsert(context.Background(), Activity{NativeID: 7})
	require.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreActivityRejectsUnmappableContent(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewActivityRepository(mock, "")
	err = repo.StoreActivity(context.Background(), "1", json.RawMessage(`{"id":"nope"}`))
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
