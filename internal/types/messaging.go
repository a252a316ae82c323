package types

// FiringType tags the kind of occasion a firing belongs to.
type FiringType string

// FiringTypeOccasion is the only firing type the scheduler emits.
const FiringTypeOccasion FiringType = "OCCASION"

// FiringMessage is the payload the Timer Service delivers to the firing
// queue when a schedule reaches its instant. The worker only requires
// SubjectID; Type is carried for observability.
type FiringMessage struct {
	SubjectID string     `json:"subjectId"`
	Type      FiringType `json:"type,omitempty"`
}
