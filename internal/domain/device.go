package domain

// ImportMode is the operation the registry applies to an imported device record.
type ImportMode string

const (
	// ImportModeCreateOrUpdate creates the device, or updates it if it already exists.
	ImportModeCreateOrUpdate ImportMode = "createOrUpdate"
)

// ExportImportDevice is one line of an import blob.
type ExportImportDevice struct {
	ID         string     `json:"id"`
	ImportMode ImportMode `json:"importMode"`
}

// NewCreateOrUpdateDevice returns an import record for id in create-or-update mode
func NewCreateOrUpdateDevice(id string) ExportImportDevice {
	return ExportImportDevice{
		ID:         id,
		ImportMode: ImportModeCreateOrUpdate,
	}
}
