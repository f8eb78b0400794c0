package model

import "time"

// Role identifies the author of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	// RoleSystem is only ever sent to the completion provider, never stored.
	RoleSystem Role = "system"
)

// Valid reports whether r may be stored in chat_history.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// ChatMessage is one persisted turn of a (username, domain) partition.
type ChatMessage struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Username  string    `gorm:"size:191;index:idx_chat_history_partition,priority:1" json:"username"`
	Domain    string    `gorm:"size:191;index:idx_chat_history_partition,priority:2" json:"domain"`
	Role      Role      `gorm:"size:16" json:"role"`
	Content   string    `gorm:"type:text" json:"content"`
	Timestamp time.Time `gorm:"column:timestamp;type:datetime;autoCreateTime;default:CURRENT_TIMESTAMP" json:"timestamp"`
}

func (ChatMessage) TableName() string {
	return "chat_history"
}

// Turn is the role/content view of a message used by sessions and the dataset builder.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ConversationKey identifies a partition.
type ConversationKey struct {
	Username string
	Domain   string
}

func (k ConversationKey) String() string {
	return k.Username + "/" + k.Domain
}
