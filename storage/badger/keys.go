package badger

import "strings"

// Key prefixes for different data types
const (
	loaderRecordPrefix = "ldrrec"
)

// makeLoaderKey generates a key for a loader record.
// Format: prefix:baseID:uniqueID
func makeLoaderKey(baseID, uniqueID string) []byte {
	var sb strings.Builder
	sb.Grow(len(loaderRecordPrefix) + len(baseID) + len(uniqueID) + 2)
	sb.WriteString(loaderRecordPrefix)
	sb.WriteByte(':')
	sb.WriteString(baseID)
	sb.WriteByte(':')
	sb.WriteString(uniqueID)
	return []byte(sb.String())
}

// makeBaseLoaderPrefix generates the prefix shared by all of a base's loader keys.
// Format: prefix:baseID:
func makeBaseLoaderPrefix(baseID string) []byte {
	return []byte(loaderRecordPrefix + ":" + baseID + ":")
}
