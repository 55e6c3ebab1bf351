package models

// LivenessStatus is the registrar's view of the local service.
type LivenessStatus string

const (
	LivenessUnknown LivenessStatus = "unknown"
	LivenessLive    LivenessStatus = "live"
	LivenessDead    LivenessStatus = "dead"
)
