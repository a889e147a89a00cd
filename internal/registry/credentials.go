// Package registry is a client for the bulk job endpoints of the Azure IoT Hub
// device registry. Requests go through an azcore pipeline, so retries, request
// logging and telemetry behave like the other Azure SDK clients in this module.
package registry

import (
	"errors"
	"fmt"

	"github.com/straye-as/device-importer/internal/connstr"
)

// ErrInvalidConnectionString is returned when a registry connection string lacks a required setting
var ErrInvalidConnectionString = errors.New("invalid IoT Hub connection string")

// Credentials are the settings of a registry service connection string
type Credentials struct {
	HostName            string
	SharedAccessKeyName string
	SharedAccessKey     string
}

// ParseConnectionString reads HostName, SharedAccessKeyName and SharedAccessKey, all required
func ParseConnectionString(connectionString string) (*Credentials, error) {
	values, err := connstr.Parse(connectionString)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConnectionString, err)
	}

	required, err := values.Require("HostName", "SharedAccessKeyName", "SharedAccessKey")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConnectionString, err)
	}

	return &Credentials{
		HostName:            required[0],
		SharedAccessKeyName: required[1],
		SharedAccessKey:     required[2],
	}, nil
}
