package record

import (
	"context"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/lumen-oj/lumen/status"
)

// Store persists records. Update and Reset are single-document atomic
// operations; append fields are pushed, never replaced.
type Store interface {
	// Insert stores a new record and fills its id
	Insert(ctx context.Context, r *Record) error

	// Get returns one record, ErrRecordNotFound if unknown
	Get(ctx context.Context, domainID string, id primitive.ObjectID) (*Record, error)

	// Update applies the delta and returns the updated record,
	// ErrRecordNotFound if unknown
	Update(ctx context.Context, domainID string, id primitive.ObjectID, d *Delta) (*Record, error)

	// Reset clears judging output and returns the record to waiting
	Reset(ctx context.Context, domainID string, id primitive.ObjectID, markRejudged bool) (*Record, error)

	// GetMulti returns the known records among ids, in no particular order
	GetMulti(ctx context.Context, domainID string, ids []primitive.ObjectID) ([]*Record, error)

	// ByUser lists a user's most recent records, newest first
	ByUser(ctx context.Context, domainID string, uid int64, limit int64) ([]*Record, error)

	// CountStatus counts a problem's records grouped by status
	CountStatus(ctx context.Context, domainID string, pid int64) (map[status.Status]int64, error)

	// RecentTime sums judged time (ms) of the user's records in the last
	// hour, for the submission priority heuristic
	RecentTime(ctx context.Context, domainID string, uid int64) (uint64, error)
}
