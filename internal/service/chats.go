package service

import (
	"context"

	"github.com/askdocs/askdocs-go/internal/metastore"
)

// Chat operations delegate to the metadata store; the store owns capacity
// eviction and read-repair, the facade just scopes everything by owner.

// CreateChat creates a new chat, evicting the owner's oldest chat when the
// cap is reached.
func (s *Service) CreateChat(ctx context.Context, owner, title string, documentIDs []string) (*metastore.ChatRecord, error) {
	return s.meta.CreateChat(ctx, owner, title, documentIDs)
}

// GetChat returns one chat, repaired if its stored form was damaged.
func (s *Service) GetChat(ctx context.Context, owner, chatID string) (*metastore.ChatRecord, error) {
	return s.meta.GetChat(ctx, owner, chatID)
}

// ListChats returns the owner's chats, newest first.
func (s *Service) ListChats(ctx context.Context, owner string) ([]*metastore.ChatRecord, error) {
	return s.meta.ListChats(ctx, owner)
}

// CountChats returns how many live chats the owner has.
func (s *Service) CountChats(ctx context.Context, owner string) (int, error) {
	return s.meta.CountChats(ctx, owner)
}

// UpdateChat applies a partial title or document-scope update.
func (s *Service) UpdateChat(ctx context.Context, owner, chatID string, title *string, documentIDs []string) (*metastore.ChatRecord, error) {
	return s.meta.UpdateChat(ctx, owner, chatID, title, documentIDs)
}

// DeleteChat removes one chat.
func (s *Service) DeleteChat(ctx context.Context, owner, chatID string) error {
	return s.meta.DeleteChat(ctx, owner, chatID)
}

// AppendMessage appends one message to a chat.
func (s *Service) AppendMessage(ctx context.Context, owner, chatID string, msg metastore.Message) (*metastore.ChatRecord, error) {
	return s.meta.AppendMessage(ctx, owner, chatID, msg)
}

// DeleteMessage removes one message from a chat by id.
func (s *Service) DeleteMessage(ctx context.Context, owner, chatID, messageID string) (*metastore.ChatRecord, error) {
	return s.meta.DeleteMessage(ctx, owner, chatID, messageID)
}
