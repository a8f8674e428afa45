package memory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/salon-reservations/internal/domain"
)

func (s *Store) InsertOutbox(_ context.Context, _ pgx.Tx, rec domain.OutboxRecord) error {
	for _, existing := range s.st.outbox {
		if existing.DedupeKey == rec.DedupeKey {
			return nil
		}
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	rec.Status = "NEW"
	s.st.outbox = append(s.st.outbox, rec)
	return nil
}

func (s *Store) FetchUnpublished(_ context.Context, _ pgx.Tx, limit int) ([]domain.OutboxRecord, error) {
	var out []domain.OutboxRecord
	for _, rec := range s.st.outbox {
		if rec.Status == "NEW" && len(out) < limit {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *Store) MarkPublished(_ context.Context, _ pgx.Tx, id uuid.UUID, publishedAt time.Time) error {
	for i := range s.st.outbox {
		if s.st.outbox[i].ID == id {
			s.st.outbox[i].Status = "PUBLISHED"
			s.st.outbox[i].PublishedAt = &publishedAt
		}
	}
	return nil
}

// Outbox returns a copy of every record written so far.
func (s *Store) Outbox() []domain.OutboxRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.OutboxRecord(nil), s.st.outbox...)
}
