package internal

import (
	"context"

	"github.com/samber/lo"

	"chatrelay/internal/storage"
)

// messageStore is the subset of the storage implementations the history
// buffer needs. Both *storage.Store and *storage.RedisArchive satisfy it.
type messageStore interface {
	AppendMessage(ctx context.Context, msg storage.Message) (string, error)
	RecentMessages(ctx context.Context, room string, limit int) ([]storage.Message, error)
}

// NewArchive adapts a message store to the Archive collaborator interface,
// translating between the wire message shape and the stored one.
func NewArchive(store messageStore) Archive {
	return storeArchive{store: store}
}

type storeArchive struct {
	store messageStore
}

func (a storeArchive) AppendMessage(ctx context.Context, room string, msg ChatMessage) (string, error) {
	return a.store.AppendMessage(ctx, storage.Message{
		Room:   room,
		Author: msg.Author,
		Body:   msg.Message,
		SentAt: msg.Time,
	})
}

func (a storeArchive) RecentMessages(ctx context.Context, room string, limit int) ([]ChatMessage, error) {
	stored, err := a.store.RecentMessages(ctx, room, limit)
	if err != nil {
		return nil, err
	}
	return lo.Map(stored, func(m storage.Message, _ int) ChatMessage {
		return ChatMessage{
			Room:    m.Room,
			Author:  m.Author,
			Message: m.Body,
			Time:    m.SentAt,
		}
	}), nil
}
