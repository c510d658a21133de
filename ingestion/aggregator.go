package ingestion

import "github.com/poiesic/kbase/core"

// Aggregator folds a finished unit's outcome into its group's outcome.
type Aggregator func(acc, next core.IngestionOutcome) core.IngestionOutcome

// Replace keeps the unit's outcome as the group's outcome. Used by
// single-unit groups.
func Replace(_, next core.IngestionOutcome) core.IngestionOutcome {
	return next
}

// Accumulate sums EntriesAdded and collects each unit's UniqueID in
// completion order. Sentinel outcomes add nothing.
func Accumulate(acc, next core.IngestionOutcome) core.IngestionOutcome {
	acc.EntriesAdded += next.EntriesAdded
	if next.UniqueID != "" {
		acc.UniqueIDs = append(acc.UniqueIDs, next.UniqueID)
	}
	if acc.LoaderType == "" {
		acc.LoaderType = next.LoaderType
	}
	return acc
}
