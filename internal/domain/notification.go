package domain

import "context"

// NotificationService defines the interface for notification services
type NotificationService interface {
	// SendSuccess sends a success notification with statistics
	SendSuccess(ctx context.Context, stats Statistics) error

	// SendError sends an error notification with error details
	SendError(ctx context.Context, err error) error
}

// Statistics holds the final statistics for a sync run
type Statistics struct {
	RunID             string
	User              string
	Source            Source
	AnimeFetched      int
	AnimeSearched     int
	SearchFailures    int
	CandidatesStored  int
	AnimeWithoutMatch int
	TotalAnime        int
	TotalTorrents     int
}
