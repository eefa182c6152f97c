package publishers

import (
	"time"

	"github.com/autovista-hq/autovista-harvester/internal/domain"
)

// Event represents one committed listing record published downstream.
type Event struct {
	FeedID      string        `json:"feed_id"`
	FeedName    string        `json:"feed_name"`
	ListingID   string        `json:"listing_id"`
	Record      domain.Record `json:"record"`
	CommittedAt time.Time     `json:"committed_at"`
}

// NewEvent constructs an Event for the given feed + record.
func NewEvent(feedID, feedName, listingID string, record domain.Record) Event {
	return Event{
		FeedID:      feedID,
		FeedName:    feedName,
		ListingID:   listingID,
		Record:      record,
		CommittedAt: time.Now().UTC(),
	}
}
