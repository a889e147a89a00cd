package storage

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/streaming"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blockblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
	"go.uber.org/zap"
)

// ErrStreamClosed is returned when writing to a committed block stream
var ErrStreamClosed = errors.New("block stream already closed")

const devicesContentType = "text/plain; charset=utf-8"

// Options tunes how device files are staged
type Options struct {
	ContainerPrefix string
	BlobName        string
	ChunkSize       int
	SASLifetime     time.Duration
	ClientOptions   *azblob.ClientOptions
}

// AzureBlobStorage stages device files in Azure Blob Storage, one fresh container per file
type AzureBlobStorage struct {
	client    *azblob.Client
	signer    *SignatureGenerator
	prefix    string
	blobName  string
	chunkSize int
	logger    *zap.Logger
}

// NewAzureBlobStorage creates a new Azure Blob Storage instance
func NewAzureBlobStorage(connectionString string, opts Options, logger *zap.Logger) (*AzureBlobStorage, error) {
	account, err := ParseConnectionString(connectionString)
	if err != nil {
		return nil, err
	}
	if err := ValidateContainerPrefix(opts.ContainerPrefix); err != nil {
		return nil, err
	}

	client, err := azblob.NewClientFromConnectionString(connectionString, opts.ClientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to create blob client: %w", err)
	}

	signer, err := NewSignatureGenerator(account, opts.SASLifetime)
	if err != nil {
		return nil, err
	}

	if opts.BlobName == "" {
		opts.BlobName = "devices.txt"
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 500
	}

	logger.Info("Azure Blob Storage initialized",
		zap.String("account", account.Name),
		zap.String("container_prefix", opts.ContainerPrefix),
		zap.Int("chunk_size", opts.ChunkSize),
		zap.Duration("sas_lifetime", signer.Lifetime()),
	)

	return &AzureBlobStorage{
		client:    client,
		signer:    signer,
		prefix:    opts.ContainerPrefix,
		blobName:  opts.BlobName,
		chunkSize: opts.ChunkSize,
		logger:    logger,
	}, nil
}

// WriteDevices creates a new container and writes payload to its device blob in chunks
func (s *AzureBlobStorage) WriteDevices(ctx context.Context, payload []byte) (*StagedBlob, error) {
	containerName := NewContainerName(s.prefix, time.Now())
	containerClient := s.client.ServiceClient().NewContainerClient(containerName)

	if err := createContainerIfNotExists(ctx, containerClient); err != nil {
		return nil, err
	}

	stream := NewBlockStream(ctx, containerClient.NewBlockBlobClient(s.blobName))
	size, err := WriteChunks(stream, payload, s.chunkSize)
	if err != nil {
		return nil, fmt.Errorf("failed to write devices blob: %w", err)
	}
	if err := stream.Close(); err != nil {
		return nil, fmt.Errorf("failed to write devices blob: %w", err)
	}

	s.logger.Info("Devices blob written",
		zap.String("container", containerName),
		zap.String("blob_name", s.blobName),
		zap.Int64("size", size),
		zap.Int("blocks", stream.Blocks()),
	)

	return &StagedBlob{
		ContainerName: containerName,
		ContainerURL:  containerClient.URL(),
		BlobName:      s.blobName,
		Size:          size,
		Blocks:        stream.Blocks(),
	}, nil
}

// SignedContainerURL returns the container URL of staged with a freshly generated account signature appended
func (s *AzureBlobStorage) SignedContainerURL(staged *StagedBlob) (string, error) {
	token, err := s.signer.Generate()
	if err != nil {
		return "", err
	}
	return staged.ContainerURL + "?" + token, nil
}

// createContainerIfNotExists creates the container; an existing container is not an error
func createContainerIfNotExists(ctx context.Context, client *container.Client) error {
	_, err := client.Create(ctx, nil)
	if err != nil && !bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
		return fmt.Errorf("failed to create container: %w", err)
	}
	return nil
}

// BlockWriter is the subset of *blockblob.Client used by BlockStream
type BlockWriter interface {
	StageBlock(ctx context.Context, base64BlockID string, body io.ReadSeekCloser, options *blockblob.StageBlockOptions) (blockblob.StageBlockResponse, error)
	CommitBlockList(ctx context.Context, base64BlockIDs []string, options *blockblob.CommitBlockListOptions) (blockblob.CommitBlockListResponse, error)
}

// BlockStream is a write stream over a block blob. Every Write stages one
// block; Close commits the staged blocks in write order.
type BlockStream struct {
	ctx    context.Context
	writer BlockWriter
	ids    []string
	closed bool
}

// NewBlockStream opens a write stream on writer
func NewBlockStream(ctx context.Context, writer BlockWriter) *BlockStream {
	return &BlockStream{ctx: ctx, writer: writer}
}

// Write stages p as the next block
func (s *BlockStream) Write(p []byte) (int, error) {
	if s.closed {
		return 0, ErrStreamClosed
	}
	if len(p) == 0 {
		return 0, nil
	}

	id := blockID(len(s.ids))
	// The body must not alias p, callers may reuse their buffer
	body := bytes.NewReader(bytes.Clone(p))
	if _, err := s.writer.StageBlock(s.ctx, id, streaming.NopCloser(body), nil); err != nil {
		return 0, fmt.Errorf("failed to stage block %d: %w", len(s.ids), err)
	}

	s.ids = append(s.ids, id)
	return len(p), nil
}

// Close commits the staged blocks. An empty stream commits an empty blob.
func (s *BlockStream) Close() error {
	if s.closed {
		return ErrStreamClosed
	}
	s.closed = true

	ids := s.ids
	if ids == nil {
		ids = []string{}
	}
	_, err := s.writer.CommitBlockList(s.ctx, ids, &blockblob.CommitBlockListOptions{
		HTTPHeaders: &blob.HTTPHeaders{
			BlobContentType: to.Ptr(devicesContentType),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to commit block list: %w", err)
	}
	return nil
}

// Blocks returns the number of blocks staged so far
func (s *BlockStream) Blocks() int {
	return len(s.ids)
}

// blockID returns a fixed-width base64 block id; all ids of a blob must have the same length
func blockID(n int) string {
	return base64.StdEncoding.EncodeToString([]byte(fmt.Sprintf("block-%08d", n)))
}
