package blob

import (
	"fmt"
	"strings"
)

// StorageType names the backend variant that persists a blob.
type StorageType string

const (
	StorageS3       StorageType = "s3"
	StorageDatabase StorageType = "database"
	StorageLocal    StorageType = "local"
)

// StorageTypes lists every supported backend tag.
var StorageTypes = []StorageType{StorageS3, StorageDatabase, StorageLocal}

// ParseStorageType matches s case-insensitively against the supported tags.
func ParseStorageType(s string) (StorageType, error) {
	candidate := StorageType(strings.ToLower(strings.TrimSpace(s)))
	for _, t := range StorageTypes {
		if candidate == t {
			return t, nil
		}
	}
	return "", fmt.Errorf("unsupported storage type: %q", s)
}

func (t StorageType) String() string {
	return string(t)
}
