package domain

import "time"

// JobType identifies the kind of registry job
type JobType string

const (
	JobTypeImport JobType = "import"
)

// JobStatus is the lifecycle state reported by the registry for a job
type JobStatus string

const (
	JobStatusUnknown   JobStatus = "unknown"
	JobStatusEnqueued  JobStatus = "enqueued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
	JobStatusScheduled JobStatus = "scheduled"
	JobStatusQueued    JobStatus = "queued"
)

// IsTerminal reports whether the job has stopped and will not change status again.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// StorageAuthenticationType selects how the registry authenticates against blob storage
type StorageAuthenticationType string

const (
	StorageAuthenticationKeyBased StorageAuthenticationType = "keyBased"
)

// JobProperties is the registry's description of a bulk import/export job
type JobProperties struct {
	JobID                     string                    `json:"jobId,omitempty"`
	Type                      JobType                   `json:"type"`
	Status                    JobStatus                 `json:"status,omitempty"`
	Progress                  int                       `json:"progress,omitempty"`
	StartTimeUTC              *time.Time                `json:"startTimeUtc,omitempty"`
	EndTimeUTC                *time.Time                `json:"endTimeUtc,omitempty"`
	InputBlobContainerURI     string                    `json:"inputBlobContainerUri,omitempty"`
	InputBlobName             string                    `json:"inputBlobName,omitempty"`
	OutputBlobContainerURI    string                    `json:"outputBlobContainerUri,omitempty"`
	OutputBlobName            string                    `json:"outputBlobName,omitempty"`
	StorageAuthenticationType StorageAuthenticationType `json:"storageAuthenticationType,omitempty"`
	FailureReason             string                    `json:"failureReason,omitempty"`
}

// TrackedJob is a job submitted by this process together with its last observed status
type TrackedJob struct {
	JobID       string    `json:"jobId"`
	Devices     int       `json:"devices"`
	Status      JobStatus `json:"status"`
	Progress    int       `json:"progress"`
	SubmittedAt time.Time `json:"submittedAt"`
	RefreshedAt time.Time `json:"refreshedAt,omitempty"`
}
