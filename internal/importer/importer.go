// Package importer registers batches of devices through the registry bulk
// import API. A batch is serialized to newline-delimited JSON, staged in a
// fresh blob container and referenced by a signed container URI in the job.
package importer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/straye-as/device-importer/internal/domain"
	"github.com/straye-as/device-importer/internal/storage"
	"go.uber.org/zap"
)

// ErrNoDevices is returned when a batch contains no device identifiers
var ErrNoDevices = errors.New("no devices to import")

// BlobStore stages serialized device batches
type BlobStore interface {
	WriteDevices(ctx context.Context, payload []byte) (*storage.StagedBlob, error)
	SignedContainerURL(staged *storage.StagedBlob) (string, error)
}

// Registry submits import jobs
type Registry interface {
	ImportDevices(ctx context.Context, inputContainerURI, outputContainerURI, blobName string) (*domain.JobProperties, error)
}

// Importer creates devices in bulk
type Importer struct {
	blobs    BlobStore
	registry Registry
	logger   *zap.Logger
}

// New creates an Importer
func New(blobs BlobStore, registry Registry, logger *zap.Logger) *Importer {
	return &Importer{
		blobs:    blobs,
		registry: registry,
		logger:   logger,
	}
}

// BuildPayload serializes one createOrUpdate record per identifier, each
// terminated by a newline. Order and duplicates are preserved.
func BuildPayload(deviceIDs []string) ([]byte, error) {
	if len(deviceIDs) == 0 {
		return nil, ErrNoDevices
	}

	var buf bytes.Buffer
	for i, id := range deviceIDs {
		if strings.TrimSpace(id) == "" {
			return nil, fmt.Errorf("device id at position %d is empty", i)
		}
		line, err := json.Marshal(domain.NewCreateOrUpdateDevice(id))
		if err != nil {
			return nil, fmt.Errorf("failed to serialize device %s: %w", id, err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// BulkCreate stages the batch and submits one import job for it. The signed
// container URI is used as both the job input and its log output.
func (im *Importer) BulkCreate(ctx context.Context, deviceIDs []string) (string, error) {
	payload, err := BuildPayload(deviceIDs)
	if err != nil {
		return "", err
	}

	staged, err := im.blobs.WriteDevices(ctx, payload)
	if err != nil {
		return "", err
	}

	containerURI, err := im.blobs.SignedContainerURL(staged)
	if err != nil {
		return "", err
	}

	job, err := im.registry.ImportDevices(ctx, containerURI, containerURI, staged.BlobName)
	if err != nil {
		return "", err
	}
	if job.JobID == "" {
		return "", errors.New("registry returned an import job without an id")
	}

	return job.JobID, nil
}

// CreateDevices runs BulkCreate and never propagates its error. A failure is
// logged with the error's type and message and returned as a failed Result.
func (im *Importer) CreateDevices(ctx context.Context, deviceIDs []string) Result {
	jobID, err := im.BulkCreate(ctx, deviceIDs)
	if err != nil {
		result := Failed(ctx, err)
		im.logger.Error("Job creation failed",
			zap.String("error_type", errorType(err)),
			zap.Error(err),
			zap.Int("devices", len(deviceIDs)),
			zap.Bool("retryable", result.Retryable),
		)
		return result
	}

	im.logger.Info("Job created",
		zap.String("job_id", jobID),
		zap.Int("devices", len(deviceIDs)),
	)
	return Succeeded(jobID)
}

// errorType names the outermost error in the chain that is not a plain
// fmt.Errorf wrapper, e.g. *url.Error or *azcore.ResponseError
func errorType(err error) string {
	for err != nil {
		name := fmt.Sprintf("%T", err)
		if name != "*fmt.wrapError" && name != "*fmt.wrapErrors" {
			return name
		}
		switch wrapped := err.(type) {
		case interface{ Unwrap() error }:
			err = wrapped.Unwrap()
		case interface{ Unwrap() []error }:
			errs := wrapped.Unwrap()
			if len(errs) == 0 {
				return name
			}
			err = errs[0]
		default:
			return name
		}
	}
	return "<nil>"
}
