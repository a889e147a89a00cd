package storage

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/straye-as/device-importer/internal/connstr"
)

// containerTimeLayout renders the UTC creation time inside container names
const containerTimeLayout = "2006-01-02-15-04-05-"

const (
	maxContainerNameLength = 63
	containerSuffixLength  = 32

	// MaxContainerPrefixLength is what is left of a container name after the timestamp and random suffix
	MaxContainerPrefixLength = maxContainerNameLength - len(containerTimeLayout) - containerSuffixLength
)

// StagedBlob describes a device file written to a fresh container
type StagedBlob struct {
	ContainerName string
	ContainerURL  string
	BlobName      string
	Size          int64
	Blocks        int
}

// Account holds the parts of a storage connection string needed for signing
type Account struct {
	Name           string
	Key            string
	Protocol       string
	EndpointSuffix string
}

// ParseConnectionString extracts the account settings from a storage connection string
func ParseConnectionString(connectionString string) (*Account, error) {
	values, err := connstr.Parse(connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse storage connection string: %w", err)
	}

	required, err := values.Require("AccountName", "AccountKey")
	if err != nil {
		return nil, fmt.Errorf("failed to parse storage connection string: %w", err)
	}

	account := &Account{
		Name:           required[0],
		Key:            required[1],
		Protocol:       "https",
		EndpointSuffix: "core.windows.net",
	}
	if protocol, ok := values.Get("DefaultEndpointsProtocol"); ok && protocol != "" {
		account.Protocol = protocol
	}
	if suffix, ok := values.Get("EndpointSuffix"); ok && suffix != "" {
		account.EndpointSuffix = suffix
	}

	return account, nil
}

// ValidateContainerPrefix checks that prefix yields valid container names:
// at most MaxContainerPrefixLength letters, digits and single hyphens, not
// starting with a hyphen.
func ValidateContainerPrefix(prefix string) error {
	if len(prefix) > MaxContainerPrefixLength {
		return fmt.Errorf("container prefix %q is longer than %d characters", prefix, MaxContainerPrefixLength)
	}
	if strings.HasPrefix(prefix, "-") || strings.Contains(prefix, "--") {
		return fmt.Errorf("container prefix %q must not start with a hyphen or contain consecutive hyphens", prefix)
	}
	for _, r := range prefix {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-') {
			return fmt.Errorf("container prefix %q may only contain letters, digits and hyphens", prefix)
		}
	}
	return nil
}

// NewContainerName returns prefix + UTC timestamp + a random 32 digit hex suffix, lower-cased
func NewContainerName(prefix string, now time.Time) string {
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")
	return strings.ToLower(prefix + now.UTC().Format(containerTimeLayout) + suffix)
}

// WriteChunks writes data to w in slices of at most chunkSize bytes and
// returns the number of bytes written. Nothing is written for empty data.
func WriteChunks(w io.Writer, data []byte, chunkSize int) (int64, error) {
	if chunkSize <= 0 {
		return 0, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}

	var written int64
	for i := 0; i < len(data); i += chunkSize {
		end := min(i+chunkSize, len(data))
		n, err := w.Write(data[i:end])
		written += int64(n)
		if err != nil {
			return written, err
		}
	}

	return written, nil
}
