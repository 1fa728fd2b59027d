package voice

import (
	"time"

	"github.com/dkeye/Resonance/internal/domain"
)

const (
	EventRoomCreated    = "voice:room-created"
	EventUserJoined     = "voice:user-joined"
	EventUserLeft       = "voice:user-left"
	EventRoomEnded      = "voice:room-ended"
	EventUserMuted      = "voice:user-muted"
	EventUserPromoted   = "voice:user-promoted"
	EventModeratorAdded = "voice:moderator-added"
)

type EndReason string

const (
	EndedEmpty EndReason = "empty"
	EndedHost  EndReason = "host"
)

type UserJoined struct {
	RoomID           domain.RoomID      `json:"roomId"`
	UserID           domain.UserID      `json:"userId"`
	Participant      domain.Participant `json:"participant"`
	HostID           domain.UserID      `json:"hostId"`
	ParticipantCount int                `json:"participantCount"`
}

type UserLeft struct {
	RoomID              domain.RoomID `json:"roomId"`
	UserID              domain.UserID `json:"userId"`
	HostID              domain.UserID `json:"hostId"`
	HostChanged         bool          `json:"hostChanged"`
	ParticipantCount    int           `json:"participantCount"`
	SpeakingTimeSeconds int64         `json:"speakingTimeSeconds"`
}

type RoomEnded struct {
	RoomID               domain.RoomID `json:"roomId"`
	Reason               EndReason     `json:"reason"`
	EndedAt              time.Time     `json:"endedAt"`
	TotalDurationSeconds int64         `json:"totalDurationSeconds"`
	PeakParticipants     int           `json:"peakParticipants"`
}

type UserMuted struct {
	RoomID   domain.RoomID `json:"roomId"`
	UserID   domain.UserID `json:"userId"`
	IsMuted  bool          `json:"isMuted"`
	ByUserID domain.UserID `json:"byUserId"`
}

type UserPromoted struct {
	RoomID   domain.RoomID `json:"roomId"`
	UserID   domain.UserID `json:"userId"`
	Role     domain.Role   `json:"role"`
	ByUserID domain.UserID `json:"byUserId"`
}

type ModeratorAdded struct {
	RoomID domain.RoomID `json:"roomId"`
	UserID domain.UserID `json:"userId"`
}
