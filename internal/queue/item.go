package queue

import (
	"time"

	"github.com/google/uuid"
)

// Item is a pending narration request.
type Item struct {
	ID         string
	Text       string
	EnqueuedAt time.Time
}

func newItem(text string) Item {
	return Item{
		ID:         uuid.New().String(),
		Text:       text,
		EnqueuedAt: time.Now(),
	}
}

// Wait returns how long the item has been pending.
func (i Item) Wait() time.Duration {
	return time.Since(i.EnqueuedAt)
}
