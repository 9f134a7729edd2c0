package workers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"affiliate-system/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ObjectStore receives archived visit batches.
type ObjectStore interface {
	PutObject(ctx context.Context, key string, body []byte, contentType string) error
}

// VisitArchiver prunes visits older than Retention. When Store is set each
// batch is written as JSON lines before the rows are deleted; a failed upload
// leaves the batch in place for the next run.
type VisitArchiver struct {
	DB        *gorm.DB
	Store     ObjectStore
	Retention time.Duration
	BatchSize int
	Now       func() time.Time
}

func NewVisitArchiver(db *gorm.DB, store ObjectStore, retention time.Duration) *VisitArchiver {
	return &VisitArchiver{
		DB:        db,
		Store:     store,
		Retention: retention,
		BatchSize: 1000,
		Now:       func() time.Time { return time.Now().UTC() },
	}
}

// Run archives and deletes expired visits, returning how many were removed.
func (a *VisitArchiver) Run(ctx context.Context) (int, error) {
	if a.Retention <= 0 {
		return 0, nil
	}
	cutoff := a.Now().Add(-a.Retention)
	db := a.DB.WithContext(ctx)

	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		var batch []models.AffiliateVisit
		if err := db.Where("visited_at < ?", cutoff).
			Order("visited_at ASC, id ASC").
			Limit(a.BatchSize).
			Find(&batch).Error; err != nil {
			return total, fmt.Errorf("failed to load expired visits: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		if a.Store != nil {
			if err := a.upload(ctx, cutoff, batch); err != nil {
				return total, err
			}
		}

		ids := make([]string, len(batch))
		for i, v := range batch {
			ids[i] = v.ID
		}
		if err := db.Where("id IN ?", ids).Delete(&models.AffiliateVisit{}).Error; err != nil {
			return total, fmt.Errorf("failed to delete archived visits: %w", err)
		}
		total += len(batch)

		if len(batch) < a.BatchSize {
			break
		}
	}

	if total > 0 {
		zap.L().Info("[VisitArchiver] pruned expired visits", zap.Int("count", total), zap.Time("cutoff", cutoff))
	}
	return total, nil
}

func (a *VisitArchiver) upload(ctx context.Context, cutoff time.Time, batch []models.AffiliateVisit) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range batch {
		if err := enc.Encode(&batch[i]); err != nil {
			return fmt.Errorf("failed to encode visit %s: %w", batch[i].ID, err)
		}
	}
	key := fmt.Sprintf("affiliate-visits/%s/%s.jsonl", cutoff.Format("2006/01/02"), uuid.NewString())
	if err := a.Store.PutObject(ctx, key, buf.Bytes(), "application/x-ndjson"); err != nil {
		return fmt.Errorf("failed to archive visits: %w", err)
	}
	return nil
}
