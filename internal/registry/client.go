package registry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/straye-as/device-importer/internal/domain"
	"go.uber.org/zap"
)

const (
	// DefaultAPIVersion is the registry REST API version used for job requests
	DefaultAPIVersion = "2021-04-12"

	// errorCodeHeader carries the registry's own error code, e.g. JobQuotaExceeded
	errorCodeHeader = "IotHub-ErrorCode"

	moduleName    = "device-importer/registry"
	moduleVersion = "v1.0.0"
)

// Options configures a registry Client
type Options struct {
	APIVersion    string
	TokenLifetime time.Duration
	// Endpoint overrides the https://<HostName> base URL taken from the connection string
	Endpoint      string
	ClientOptions *azcore.ClientOptions
}

// Client submits and inspects bulk registry jobs. Construct it once and pass it
// to the components that need it.
type Client struct {
	endpoint   string
	hostName   string
	apiVersion string
	pipeline   runtime.Pipeline
	logger     *zap.Logger
}

// NewClient creates a registry client from a service connection string
func NewClient(connectionString string, opts Options, logger *zap.Logger) (*Client, error) {
	creds, err := ParseConnectionString(connectionString)
	if err != nil {
		return nil, err
	}

	tokens, err := NewTokenSource(creds, opts.TokenLifetime)
	if err != nil {
		return nil, err
	}

	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = "https://" + creds.HostName
	}
	apiVersion := opts.APIVersion
	if apiVersion == "" {
		apiVersion = DefaultAPIVersion
	}

	pipeline := runtime.NewPipeline(moduleName, moduleVersion, runtime.PipelineOptions{
		PerRetry: []policy.Policy{&sharedAccessPolicy{tokens: tokens}},
	}, opts.ClientOptions)

	logger.Info("IoT Hub registry client initialized",
		zap.String("host", creds.HostName),
		zap.String("policy", creds.SharedAccessKeyName),
		zap.String("api_version", apiVersion),
	)

	return &Client{
		endpoint:   strings.TrimSuffix(endpoint, "/"),
		hostName:   creds.HostName,
		apiVersion: apiVersion,
		pipeline:   pipeline,
		logger:     logger,
	}, nil
}

// HostName returns the registry host the client talks to
func (c *Client) HostName() string {
	return c.hostName
}

// ImportDevices submits an import job reading blobName from inputContainerURI
// and writing the job log to outputContainerURI. Both URIs must carry a
// signature that grants the registry access to the containers.
func (c *Client) ImportDevices(ctx context.Context, inputContainerURI, outputContainerURI, blobName string) (*domain.JobProperties, error) {
	body := domain.JobProperties{
		Type:                      domain.JobTypeImport,
		InputBlobContainerURI:     inputContainerURI,
		InputBlobName:             blobName,
		OutputBlobContainerURI:    outputContainerURI,
		StorageAuthenticationType: domain.StorageAuthenticationKeyBased,
	}

	req, err := c.newRequest(ctx, http.MethodPost, "jobs", "create")
	if err != nil {
		return nil, err
	}
	if err := runtime.MarshalAsJSON(req, body); err != nil {
		return nil, fmt.Errorf("failed to encode import job: %w", err)
	}

	job, err := c.doJob(req, http.StatusOK, http.StatusCreated, http.StatusAccepted)
	if err != nil {
		return nil, fmt.Errorf("failed to create import job: %w", err)
	}

	c.logger.Info("Import job created",
		zap.String("job_id", job.JobID),
		zap.String("status", string(job.Status)),
	)
	return job, nil
}

// GetJob returns the current properties of a job
func (c *Client) GetJob(ctx context.Context, jobID string) (*domain.JobProperties, error) {
	if jobID == "" {
		return nil, errors.New("job id is required")
	}

	req, err := c.newRequest(ctx, http.MethodGet, "jobs", url.PathEscape(jobID))
	if err != nil {
		return nil, err
	}

	job, err := c.doJob(req, http.StatusOK)
	if err != nil {
		return nil, fmt.Errorf("failed to get job %s: %w", jobID, err)
	}
	return job, nil
}

// CancelJob cancels a job that has not finished yet
func (c *Client) CancelJob(ctx context.Context, jobID string) (*domain.JobProperties, error) {
	if jobID == "" {
		return nil, errors.New("job id is required")
	}

	req, err := c.newRequest(ctx, http.MethodDelete, "jobs", url.PathEscape(jobID))
	if err != nil {
		return nil, err
	}

	resp, err := c.pipeline.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel job %s: %w", jobID, err)
	}
	if !runtime.HasStatusCode(resp, http.StatusOK, http.StatusNoContent) {
		return nil, fmt.Errorf("failed to cancel job %s: %w", jobID, newResponseError(resp))
	}

	job := &domain.JobProperties{JobID: jobID, Status: domain.JobStatusCancelled}
	if resp.StatusCode == http.StatusOK {
		if err := runtime.UnmarshalAsJSON(resp, job); err != nil {
			return nil, fmt.Errorf("failed to decode job %s: %w", jobID, err)
		}
	}

	c.logger.Info("Job cancelled", zap.String("job_id", jobID))
	return job, nil
}

func (c *Client) newRequest(ctx context.Context, method string, paths ...string) (*policy.Request, error) {
	req, err := runtime.NewRequest(ctx, method, runtime.JoinPaths(c.endpoint, paths...))
	if err != nil {
		return nil, fmt.Errorf("failed to build registry request: %w", err)
	}

	query := req.Raw().URL.Query()
	query.Set("api-version", c.apiVersion)
	req.Raw().URL.RawQuery = query.Encode()
	req.Raw().Header.Set("Accept", "application/json")

	return req, nil
}

func (c *Client) doJob(req *policy.Request, statusCodes ...int) (*domain.JobProperties, error) {
	resp, err := c.pipeline.Do(req)
	if err != nil {
		return nil, err
	}
	if !runtime.HasStatusCode(resp, statusCodes...) {
		return nil, newResponseError(resp)
	}

	var job domain.JobProperties
	if err := runtime.UnmarshalAsJSON(resp, &job); err != nil {
		return nil, fmt.Errorf("failed to decode job: %w", err)
	}
	return &job, nil
}

// newResponseError prefers the registry error code header over the generic
// code lookup done by azcore
func newResponseError(resp *http.Response) error {
	if code := resp.Header.Get(errorCodeHeader); code != "" {
		return runtime.NewResponseErrorWithErrorCode(resp, code)
	}
	return runtime.NewResponseError(resp)
}

// IsNotFound reports whether err is a registry response with status 404
func IsNotFound(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound
}
