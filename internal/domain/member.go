package domain

import "time"

type Role string

const (
	RoleSpeaker  Role = "speaker"
	RoleListener Role = "listener"
)

// Participant represents a user's seat in a voice room.
// No transport or lifecycle logic here.
type Participant struct {
	UserID              UserID    `json:"userId" bson:"userId"`
	Role                Role      `json:"role" bson:"role"`
	IsMuted             bool      `json:"isMuted" bson:"isMuted"`
	JoinedAt            time.Time `json:"joinedAt" bson:"joinedAt"`
	SpeakingTimeSeconds int64     `json:"speakingTimeSeconds" bson:"speakingTimeSeconds"`

	// SpeakingSince opens the interval not yet counted in SpeakingTimeSeconds.
	// It is stored so a reloaded room keeps accruing.
	SpeakingSince *time.Time `json:"-" bson:"speakingSince,omitempty"`
}

// NewParticipant seats id with role; a speaker starts accruing speaking time at once.
func NewParticipant(id UserID, role Role, at time.Time) Participant {
	p := Participant{UserID: id, Role: role, JoinedAt: at}
	p.openInterval(at)
	return p
}

func (p *Participant) speaking() bool {
	return p.Role == RoleSpeaker && !p.IsMuted
}

func (p *Participant) openInterval(at time.Time) {
	if p.speaking() && p.SpeakingSince == nil {
		p.SpeakingSince = &at
	}
}

func (p *Participant) closeInterval(at time.Time) {
	if p.SpeakingSince == nil {
		return
	}
	if d := at.Sub(*p.SpeakingSince); d > 0 {
		p.SpeakingTimeSeconds += int64(d / time.Second)
	}
	p.SpeakingSince = nil
}

func (p *Participant) SetMuted(muted bool, at time.Time) {
	p.closeInterval(at)
	p.IsMuted = muted
	p.openInterval(at)
}

func (p *Participant) SetRole(role Role, at time.Time) {
	p.closeInterval(at)
	p.Role = role
	p.openInterval(at)
}

// Settle flushes an open speaking interval, used when the participant leaves.
func (p *Participant) Settle(at time.Time) {
	p.closeInterval(at)
}
