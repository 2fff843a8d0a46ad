package model

// Decision is the classifier output for one envelope.
type Decision struct {
	Alert     bool
	Message   string
	EventType string
}
