package intake

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type RecordRepository interface {
	Create(ctx context.Context, sub Submission, createdBy string) (*Record, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Record, error)
	List(ctx context.Context, f ListFilter, limit, offset int) ([]*Record, int, error)
	CountByDay(ctx context.Context, from, to time.Time) ([]DayCount, error)
}
