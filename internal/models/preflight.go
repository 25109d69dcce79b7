package models

import "time"

// PreflightResult grades one capability check.
type PreflightResult string

const (
	PreflightPass PreflightResult = "pass"
	// PreflightWarning lets the user proceed after acknowledgment.
	PreflightWarning PreflightResult = "warning"
	// PreflightFail blocks fieldwork from starting.
	PreflightFail PreflightResult = "fail"
)

// PreflightCheckName enumerates the capability checks run before fieldwork.
type PreflightCheckName string

const (
	CheckLocalStore  PreflightCheckName = "localStore"
	CheckFreeStorage PreflightCheckName = "freeStorage"
	CheckCamera      PreflightCheckName = "camera"
	CheckMicrophone  PreflightCheckName = "microphone"
	CheckGPS         PreflightCheckName = "gps"
	CheckReviewData  PreflightCheckName = "reviewData"
)

// PreflightCheck is the outcome of one capability probe.
type PreflightCheck struct {
	Name   PreflightCheckName `json:"name"`
	Result PreflightResult    `json:"result"`
	Detail string             `json:"detail,omitempty"`
	RanAt  time.Time          `json:"ranAt"`
}

// PreflightReport aggregates all checks for one review.
type PreflightReport struct {
	ReviewID   string           `json:"reviewId"`
	Checks     []PreflightCheck `json:"checks"`
	CanProceed bool             `json:"canProceed"`
	NeedsAck   bool             `json:"needsAck"`
}
