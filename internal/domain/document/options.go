package document

import (
	"time"

	"github.com/google/uuid"
)

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for createdAt/updatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides the id generator used for new entities.
func WithIDGenerator(newID func() string) Option {
	return func(s *Store) {
		if newID != nil {
			s.newID = newID
		}
	}
}

func defaultNow() time.Time {
	return time.Now().UTC()
}

func defaultID() string {
	return uuid.NewString()
}
