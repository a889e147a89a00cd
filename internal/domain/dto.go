package domain

// DTOs for API requests and responses

// CreateImportRequest is the body of POST /api/v1/imports
type CreateImportRequest struct {
	DeviceIDs []string `json:"deviceIds" validate:"required,min=1,max=1000,dive,required,max=128,printascii"`
}

// ImportResponse is returned when an import job has been submitted
type ImportResponse struct {
	JobID   string `json:"jobId"`
	Devices int    `json:"devices"`
}

// JobDTO is a registry job as exposed by the API. Container URIs are returned
// without their query string so that storage signatures are not disclosed.
type JobDTO struct {
	JobID                  string    `json:"jobId"`
	Type                   JobType   `json:"type"`
	Status                 JobStatus `json:"status"`
	Progress               int       `json:"progress"`
	StartTimeUTC           string    `json:"startTimeUtc,omitempty"` // ISO 8601
	EndTimeUTC             string    `json:"endTimeUtc,omitempty"`   // ISO 8601
	InputBlobContainerURI  string    `json:"inputBlobContainerUri,omitempty"`
	OutputBlobContainerURI string    `json:"outputBlobContainerUri,omitempty"`
	FailureReason          string    `json:"failureReason,omitempty"`
}

// JobListResponse lists the jobs submitted through this service
type JobListResponse struct {
	Data  []TrackedJob `json:"data"`
	Total int          `json:"total"`
}
