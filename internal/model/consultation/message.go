package consultation

import "time"

// SenderRole identifies which side of the consultation wrote a message.
type SenderRole string

const (
	RoleDoctor  SenderRole = "doctor"
	RolePatient SenderRole = "patient"
)

// Valid reports whether r is one of the two known roles.
func (r SenderRole) Valid() bool {
	return r == RoleDoctor || r == RolePatient
}

// Message is an immutable chat transcript entry.
type Message struct {
	ID         string     `json:"id"`
	SessionID  string     `json:"sessionId"`
	SenderName string     `json:"senderName"`
	SenderType SenderRole `json:"senderType"`
	Message    string     `json:"message"`
	Timestamp  time.Time  `json:"timestamp"`
}
