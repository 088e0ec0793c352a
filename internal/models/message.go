package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	SenderUser = "user"
	SenderBot  = "bot"
)

// ChatMessage is one turn inside a session. Ordering within a session is
// (created_at, seq); seq is DB-assigned so equal timestamps still have a
// stable total order.
type ChatMessage struct {
	ID        string `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Seq       int64  `gorm:"column:seq;type:bigserial;autoIncrement;uniqueIndex" json:"seq"`
	SessionID string `gorm:"column:session_id;type:uuid;index" json:"session_id"`
	UserID    string `gorm:"column:user_id;type:uuid;index" json:"user_id"`

	SenderType  string  `gorm:"column:sender_type;type:text" json:"sender_type"` // user|bot
	MessageText string  `gorm:"column:message_text;type:text" json:"message_text"`
	AudioURL    *string `gorm:"column:audio_url;type:text" json:"audio_url,omitempty"`
	Language    string  `gorm:"column:language;type:text" json:"language"` // darja|french|arabic

	CreatedAt time.Time `gorm:"column:created_at;type:timestamptz;index" json:"created_at"`

	// Bot turns only.
	Intent          *string  `gorm:"column:intent;type:text" json:"intent,omitempty"`
	ConfidenceScore *float64 `gorm:"column:confidence_score" json:"confidence_score,omitempty"`
	UsedWebSearch   bool     `gorm:"column:used_web_search" json:"used_web_search"`
	UsedUserHistory bool     `gorm:"column:used_user_history" json:"used_user_history"`

	WebSources     datatypes.JSON `gorm:"column:web_sources;type:jsonb" json:"web_sources,omitempty"`
	ResponseTimeMS *int64         `gorm:"column:response_time_ms" json:"response_time_ms,omitempty"`
	TokensUsed     *int           `gorm:"column:tokens_used" json:"tokens_used,omitempty"`
}

func (ChatMessage) TableName() string { return "chat_messages" }
