package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	SessionStatusActive    = "active"
	SessionStatusClosed    = "closed"
	SessionStatusAbandoned = "abandoned"
)

// ChatSession is one continuous conversation thread owned by a user.
// Closed and abandoned sessions are immutable except for deletion.
type ChatSession struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	SessionID string             `bson:"session_id" json:"session_id"` // uuid v4
	UserID    string             `bson:"user_id" json:"user_id"`

	Status  string `bson:"status" json:"status"` // active|closed|abandoned
	Summary string `bson:"summary,omitempty" json:"summary,omitempty"`

	DeviceType   string    `bson:"device_type,omitempty" json:"device_type,omitempty"` // web|mobile
	UserLocation *GeoPoint `bson:"user_location,omitempty" json:"user_location,omitempty"`

	StartedAt     time.Time  `bson:"started_at" json:"started_at"`
	EndedAt       *time.Time `bson:"ended_at,omitempty" json:"ended_at,omitempty"`
	LastMessageAt *time.Time `bson:"last_message_at,omitempty" json:"last_message_at,omitempty"`

	TotalMessages int64 `bson:"total_messages" json:"total_messages"`
}

type GeoPoint struct {
	Latitude  float64 `bson:"latitude" json:"latitude"`
	Longitude float64 `bson:"longitude" json:"longitude"`
}
