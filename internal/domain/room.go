package domain

import (
	"slices"
	"strings"
	"time"
)

type RoomID string

type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

type RoomType string

const (
	RoomTypeOpen      RoomType = "open"
	RoomTypeModerated RoomType = "moderated"
	RoomTypePrivate   RoomType = "private"
)

const (
	MaxRoomNameLen = 100
	MaxTags        = 10
)

type RoomSettings struct {
	AllowRequests          bool  `json:"allowRequests" bson:"allowRequests"`
	AutoApproveSpeakers    bool  `json:"autoApproveSpeakers" bson:"autoApproveSpeakers"`
	MaxSpeakingTimeSeconds int64 `json:"maxSpeakingTimeSeconds" bson:"maxSpeakingTimeSeconds"`
}

// VoiceRoom is the persisted aggregate; participants keep join order.
type VoiceRoom struct {
	ID                   RoomID        `json:"id" bson:"_id"`
	Name                 string        `json:"name" bson:"name"`
	Description          string        `json:"description" bson:"description"`
	HostID               UserID        `json:"hostId" bson:"hostId"`
	ModeratorIDs         []UserID      `json:"moderatorIds" bson:"moderatorIds"`
	Participants         []Participant `json:"participants" bson:"participants"`
	Capacity             int           `json:"capacity" bson:"capacity"`
	Visibility           Visibility    `json:"visibility" bson:"visibility"`
	RoomType             RoomType      `json:"roomType" bson:"roomType"`
	Active               bool          `json:"active" bson:"active"`
	Topic                string        `json:"topic" bson:"topic"`
	Tags                 []string      `json:"tags" bson:"tags"`
	CreatedAt            time.Time     `json:"createdAt" bson:"createdAt"`
	EndedAt              *time.Time    `json:"endedAt,omitempty" bson:"endedAt,omitempty"`
	TotalDurationSeconds int64         `json:"totalDurationSeconds" bson:"totalDurationSeconds"`
	PeakParticipants     int           `json:"peakParticipants" bson:"peakParticipants"`
	Settings             RoomSettings  `json:"settings" bson:"settings"`
}

// RoomConfig is what a host supplies when opening a room.
type RoomConfig struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Capacity    int          `json:"capacity"`
	Visibility  Visibility   `json:"visibility"`
	RoomType    RoomType     `json:"roomType"`
	Topic       string       `json:"topic"`
	Tags        []string     `json:"tags"`
	Settings    RoomSettings `json:"settings"`
}

// Normalize trims fields, fills enum defaults and validates the rest.
// Capacity is left to the caller, which knows the configured bounds.
func (c *RoomConfig) Normalize() error {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return ErrValidation
	}
	if len(c.Name) > MaxRoomNameLen {
		return ErrValidation
	}
	switch c.Visibility {
	case "":
		c.Visibility = VisibilityPublic
	case VisibilityPublic, VisibilityPrivate:
	default:
		return ErrValidation
	}
	switch c.RoomType {
	case "":
		c.RoomType = RoomTypeOpen
	case RoomTypeOpen, RoomTypeModerated, RoomTypePrivate:
	default:
		return ErrValidation
	}
	if len(c.Tags) > MaxTags {
		return ErrValidation
	}
	if c.Capacity < 0 {
		return ErrValidation
	}
	return nil
}

func (r *VoiceRoom) indexOf(uid UserID) int {
	return slices.IndexFunc(r.Participants, func(p Participant) bool { return p.UserID == uid })
}

func (r *VoiceRoom) HasParticipant(uid UserID) bool {
	return r.indexOf(uid) >= 0
}

// Participant returns a pointer into the participant list, valid until the list is modified.
func (r *VoiceRoom) Participant(uid UserID) *Participant {
	i := r.indexOf(uid)
	if i < 0 {
		return nil
	}
	return &r.Participants[i]
}

func (r *VoiceRoom) IsModerator(uid UserID) bool {
	return slices.Contains(r.ModeratorIDs, uid)
}

// CanModerate reports whether uid holds host or moderator authority.
func (r *VoiceRoom) CanModerate(uid UserID) bool {
	return r.HostID == uid || r.IsModerator(uid)
}

func (r *VoiceRoom) IsFull() bool {
	return len(r.Participants) >= r.Capacity
}

// RemoveParticipant drops uid while keeping the remaining join order.
func (r *VoiceRoom) RemoveParticipant(uid UserID) (Participant, bool) {
	i := r.indexOf(uid)
	if i < 0 {
		return Participant{}, false
	}
	p := r.Participants[i]
	r.Participants = slices.Delete(r.Participants, i, i+1)
	return p, true
}

// EarliestParticipant returns the remaining participant that joined first.
func (r *VoiceRoom) EarliestParticipant() (UserID, bool) {
	if len(r.Participants) == 0 {
		return "", false
	}
	best := 0
	for i := 1; i < len(r.Participants); i++ {
		if r.Participants[i].JoinedAt.Before(r.Participants[best].JoinedAt) {
			best = i
		}
	}
	return r.Participants[best].UserID, true
}

// MarkEnded moves the room to its terminal state.
func (r *VoiceRoom) MarkEnded(at time.Time) {
	r.Active = false
	r.Participants = []Participant{}
	r.EndedAt = &at
	d := at.Sub(r.CreatedAt)
	if d < 0 {
		d = 0
	}
	r.TotalDurationSeconds = int64(d / time.Second)
}

// Clone copies the room deep enough that callers cannot mutate engine state.
func (r *VoiceRoom) Clone() *VoiceRoom {
	cp := *r
	cp.ModeratorIDs = slices.Clone(r.ModeratorIDs)
	cp.Participants = slices.Clone(r.Participants)
	cp.Tags = slices.Clone(r.Tags)
	if r.EndedAt != nil {
		t := *r.EndedAt
		cp.EndedAt = &t
	}
	return &cp
}
