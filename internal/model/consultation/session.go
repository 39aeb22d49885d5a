package consultation

import "time"

// Session is a single doctor-patient consultation.
type Session struct {
	ID          string     `json:"id"`
	SessionID   string     `json:"sessionId"`
	DoctorName  string     `json:"doctorName"`
	PatientName *string    `json:"patientName"`
	IsActive    bool       `json:"isActive"`
	CreatedAt   time.Time  `json:"createdAt"`
	EndedAt     *time.Time `json:"endedAt"`
}
