package repository

import (
	"context"

	"github.com/Sandro385/expert-tune/internal/apperr"
	"github.com/Sandro385/expert-tune/internal/model"

	"gorm.io/gorm"
)

// MessageRepository is the append-only log of chat turns, partitioned by (username, domain).
type MessageRepository interface {
	// Append writes one turn and returns it with its store-assigned id.
	Append(ctx context.Context, key model.ConversationKey, role model.Role, content string) (*model.ChatMessage, error)
	// LoadConversation returns the partition in ascending id order. A missing partition yields an empty slice.
	LoadConversation(ctx context.Context, key model.ConversationKey) ([]model.ChatMessage, error)
}

type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository creates a gorm-backed MessageRepository.
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) Append(ctx context.Context, key model.ConversationKey, role model.Role, content string) (*model.ChatMessage, error) {
	if !role.Valid() {
		return nil, apperr.Invalid("role", "must be user or assistant")
	}
	msg := &model.ChatMessage{
		Username: key.Username,
		Domain:   key.Domain,
		Role:     role,
		Content:  content,
	}
	if err := r.db.WithContext(ctx).Create(msg).Error; err != nil {
		return nil, apperr.Storage("append message", err)
	}
	return msg, nil
}

func (r *messageRepository) LoadConversation(ctx context.Context, key model.ConversationKey) ([]model.ChatMessage, error) {
	messages := make([]model.ChatMessage, 0)
	err := r.db.WithContext(ctx).
		Where("username = ? AND domain = ?", key.Username, key.Domain).
		Order("id ASC").
		Find(&messages).Error
	if err != nil {
		return nil, apperr.Storage("load conversation", err)
	}
	return messages, nil
}

// Turns projects stored messages onto their role/content view.
func Turns(messages []model.ChatMessage) []model.Turn {
	turns := make([]model.Turn, 0, len(messages))
	for _, m := range messages {
		turns = append(turns, model.Turn{Role: m.Role, Content: m.Content})
	}
	return turns
}
