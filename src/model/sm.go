package model

// Short-term session keys (Redis)
//
// session:{session_id}    // JSON encoded session record
const SessionKeyPrefix = "session:"

// SessionKey returns the Redis key of a session record
func SessionKey(sessionID string) string {
	return SessionKeyPrefix + sessionID
}
