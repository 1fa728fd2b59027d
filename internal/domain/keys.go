package domain

import "strings"

// RoomKey names a logical broadcast channel, prefixed by its kind.
type RoomKey string

const (
	voicePrefix = "voice:"
	chatPrefix  = "chat:"
	partyPrefix = "party:"
	userPrefix  = "user:"
)

func VoiceRoomKey(id RoomID) RoomKey { return RoomKey(voicePrefix + string(id)) }
func ChatRoomKey(id string) RoomKey  { return RoomKey(chatPrefix + id) }
func PartyRoomKey(id string) RoomKey { return RoomKey(partyPrefix + id) }
func UserRoomKey(id UserID) RoomKey  { return RoomKey(userPrefix + string(id)) }

// VoiceRoomID extracts the voice room id from a voice-typed key.
func (k RoomKey) VoiceRoomID() (RoomID, bool) {
	s := string(k)
	if !strings.HasPrefix(s, voicePrefix) {
		return "", false
	}
	return RoomID(strings.TrimPrefix(s, voicePrefix)), true
}
