// Package app wires the Azure clients and the importer from configuration.
// It is shared by the importer CLI and the API service.
package app

import (
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/straye-as/device-importer/internal/config"
	"github.com/straye-as/device-importer/internal/importer"
	"github.com/straye-as/device-importer/internal/jobs"
	"github.com/straye-as/device-importer/internal/registry"
	"github.com/straye-as/device-importer/internal/storage"
	"go.uber.org/zap"
)

// Services are the long-lived components built once per process
type Services struct {
	Registry *registry.Client
	Blobs    *storage.AzureBlobStorage
	Importer *importer.Importer
	Tracker  *jobs.Tracker
	Runner   *jobs.Runner
}

// New builds the registry client, blob storage and importer described by cfg
func New(cfg *config.Config, logger *zap.Logger) (*Services, error) {
	registryClient, err := registry.NewClient(cfg.IoTHub.ConnectionString, registry.Options{
		APIVersion:    cfg.IoTHub.ApiVersion,
		TokenLifetime: cfg.IoTHub.TokenLifetimeDuration(),
		ClientOptions: &azcore.ClientOptions{
			Retry: policy.RetryOptions{TryTimeout: cfg.IoTHub.RequestTimeoutDuration()},
		},
	}, logger.Named("registry"))
	if err != nil {
		return nil, fmt.Errorf("failed to create registry client: %w", err)
	}

	blobs, err := storage.NewAzureBlobStorage(cfg.Storage.ConnectionString, storage.Options{
		ContainerPrefix: cfg.Storage.ContainerPrefix,
		BlobName:        cfg.Storage.BlobName,
		ChunkSize:       cfg.Storage.ChunkSize,
		SASLifetime:     cfg.Storage.SASLifetimeDuration(),
		ClientOptions:   &azblob.ClientOptions{},
	}, logger.Named("storage"))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	imp := importer.New(blobs, registryClient, logger.Named("importer"))
	tracker := jobs.NewTracker()

	return &Services{
		Registry: registryClient,
		Blobs:    blobs,
		Importer: imp,
		Tracker:  tracker,
		Runner:   jobs.NewRunner(imp, registryClient, tracker, RetryPolicy(&cfg.Retry), logger.Named("runner")),
	}, nil
}

// RetryPolicy converts the retry settings into a jobs.RetryPolicy
func RetryPolicy(cfg *config.RetryConfig) jobs.RetryPolicy {
	return jobs.RetryPolicy{
		InitialInterval: cfg.InitialIntervalDuration(),
		Multiplier:      cfg.Multiplier,
		MaxInterval:     cfg.MaxIntervalDuration(),
		MaxAttempts:     cfg.MaxAttempts,
	}
}
