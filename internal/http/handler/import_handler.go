package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/straye-as/device-importer/internal/domain"
	"github.com/straye-as/device-importer/internal/importer"
	"github.com/straye-as/device-importer/internal/jobs"
	"go.uber.org/zap"
)

// DeviceCreator submits one import job per batch of devices
type DeviceCreator interface {
	CreateDevices(ctx context.Context, deviceIDs []string) importer.Result
}

type ImportHandler struct {
	creator DeviceCreator
	tracker *jobs.Tracker
	logger  *zap.Logger
}

func NewImportHandler(creator DeviceCreator, tracker *jobs.Tracker, logger *zap.Logger) *ImportHandler {
	return &ImportHandler{
		creator: creator,
		tracker: tracker,
		logger:  logger,
	}
}

// Create submits an import job for the given devices.
// Responds 202 with the job id, 400 on invalid input, 503 when the failure
// is worth retrying later and 502 when it is not.
func (h *ImportHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := validate.Struct(req); err != nil {
		respondValidationError(w, err)
		return
	}

	result := h.creator.CreateDevices(r.Context(), req.DeviceIDs)
	if !result.OK() {
		h.logger.Warn("import request failed",
			zap.Int("devices", len(req.DeviceIDs)),
			zap.Bool("retryable", result.Retryable),
			zap.Error(result.Err))

		if result.Retryable {
			w.Header().Set("Retry-After", "30")
			respondWithError(w, http.StatusServiceUnavailable, "The device registry is temporarily unavailable, try again later")
			return
		}
		respondWithError(w, http.StatusBadGateway, "The import job could not be created")
		return
	}

	h.tracker.Track(result.JobID, len(req.DeviceIDs))

	w.Header().Set("Location", "/api/v1/jobs/"+result.JobID)
	respondJSON(w, http.StatusAccepted, domain.ImportResponse{
		JobID:   result.JobID,
		Devices: len(req.DeviceIDs),
	})
}
