package domain

import "context"

// Poster posts plain text into a chat channel.
type Poster interface {
	PostText(ctx context.Context, channelID, text string) error
}
