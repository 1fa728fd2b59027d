package core

import (
	"context"
	"time"

	"github.com/dkeye/Resonance/internal/domain"
)

// PublishResult reports delivery stats/backpressure to orchestrator.
type PublishResult struct {
	SendTo  int
	Dropped []ConnectionID
}

// VoiceRoomStore is the durable home of VoiceRoom documents.
// Implementations return domain.ErrRoomNotFound for unknown ids.
type VoiceRoomStore interface {
	Insert(ctx context.Context, room *domain.VoiceRoom) error
	Save(ctx context.Context, room *domain.VoiceRoom) error
	Get(ctx context.Context, id domain.RoomID) (*domain.VoiceRoom, error)
	ListActivePublic(ctx context.Context, limit int) ([]*domain.VoiceRoom, error)
	FindActiveByParticipant(ctx context.Context, uid domain.UserID) ([]*domain.VoiceRoom, error)
	// EndAllActive marks every active room ended at the given instant.
	EndAllActive(ctx context.Context, at time.Time) (int64, error)
}

// TokenVerifier resolves a handshake credential to an identity.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (domain.User, error)
}

// FriendsDirectory answers who should hear about a user's activity.
type FriendsDirectory interface {
	Friends(ctx context.Context, uid domain.UserID) ([]domain.UserID, error)
}
