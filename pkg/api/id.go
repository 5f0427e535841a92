package api

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const (
	jobIDPrefix     = "job_"
	requestIDPrefix = "req_"
)

var jobIDPattern = regexp.MustCompile(`^job_[0-9a-f]{32}$`)

// NewJobID generates a job ID: "job_" followed by a random UUID in hex.
func NewJobID() string {
	return jobIDPrefix + compactUUID()
}

// NewRequestID generates a request ID used to correlate log lines.
func NewRequestID() string {
	return requestIDPrefix + compactUUID()
}

// ValidateJobID checks whether id has the form produced by NewJobID.
func ValidateJobID(id string) bool {
	return jobIDPattern.MatchString(id)
}

func compactUUID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
