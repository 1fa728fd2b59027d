package domain

import "errors"

var (
	ErrAuthentication      = errors.New("authentication failed")
	ErrValidation          = errors.New("validation failed")
	ErrRoomNotFound        = errors.New("room not found")
	ErrRoomInactive        = errors.New("room is inactive")
	ErrRoomFull            = errors.New("room is full")
	ErrAlreadyJoined       = errors.New("already joined")
	ErrNotInRoom           = errors.New("not in room")
	ErrPermission          = errors.New("permission denied")
	ErrAlreadyEnded        = errors.New("room already ended")
	ErrDuplicateConnection = errors.New("duplicate connection")
	ErrServiceUnavailable  = errors.New("service unavailable")
	ErrRateLimited         = errors.New("rate limited")

	ErrUserIDEmpty        = errors.New("user id empty")
	ErrUserIDTooLong      = errors.New("user id too long")
	ErrDisplayNameTooLong = errors.New("display name too long")
)

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrAuthentication, "authentication"},
	{ErrValidation, "validation"},
	{ErrRoomNotFound, "room_not_found"},
	{ErrRoomInactive, "room_inactive"},
	{ErrRoomFull, "room_full"},
	{ErrAlreadyJoined, "already_joined"},
	{ErrNotInRoom, "not_in_room"},
	{ErrPermission, "permission"},
	{ErrAlreadyEnded, "already_ended"},
	{ErrDuplicateConnection, "duplicate_connection"},
	{ErrServiceUnavailable, "service_unavailable"},
	{ErrRateLimited, "rate_limited"},
}

// ErrorCode maps an error onto the stable code reported to clients.
func ErrorCode(err error) string {
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	return "internal"
}
