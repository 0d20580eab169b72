// Package outcome classifies rehydration records and routes each one to the
// sink or summary list it belongs to.
package outcome

import (
	"strings"

	"github.com/dharsanguruparan/rehydrator/internal/model"
)

// Kind is the result of classifying a single record.
type Kind int

const (
	KindAvailable Kind = iota
	KindTooOld
	KindNotFound
	KindInvalidFormat
	// KindUnrecognized covers unavailable records whose status matches none
	// of the known phrases. They are routed like KindNotFound.
	KindUnrecognized
)

func (k Kind) String() string {
	switch k {
	case KindAvailable:
		return "available"
	case KindTooOld:
		return "too_old"
	case KindNotFound:
		return "not_found"
	case KindInvalidFormat:
		return "invalid_format"
	case KindUnrecognized:
		return "unrecognized"
	default:
		return "unknown"
	}
}

// Status phrases returned by the API for unavailable activities. Matching is
// case-sensitive.
const (
	statusOutsideTimeframe = "timeframe"
	statusNotFound         = "not found"
	statusInvalidID        = "invalid ID"
)

// Classify maps a record to its Kind. An available record is always
// KindAvailable regardless of its status text.
func Classify(rec model.ActivityRecord) Kind {
	if rec.Available {
		return KindAvailable
	}
	switch {
	case strings.Contains(rec.Status, statusOutsideTimeframe):
		return KindTooOld
	case strings.Contains(rec.Status, statusNotFound):
		return KindNotFound
	case strings.Contains(rec.Status, statusInvalidID):
		return KindInvalidFormat
	default:
		return KindUnrecognized
	}
}
