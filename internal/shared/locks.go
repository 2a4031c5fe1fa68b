package shared

import "fmt"

// ReorderVersionKey builds the redis key holding the reorder cache version of a pharmacy.
func ReorderVersionKey(pharmacyID string) string {
	return fmt.Sprintf("pharmacy:%s:reorder:version", pharmacyID)
}

// ReorderCacheKey builds the versioned redis key for cached reorder suggestions.
func ReorderCacheKey(pharmacyID string, version int64) string {
	return fmt.Sprintf("pharmacy:%s:reorder:%d", pharmacyID, version)
}
