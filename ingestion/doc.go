// Package ingestion schedules content ingestion under a global budget.
//
// A Builder expands a core.ContentDescriptor into a UnitGroup: one
// LoaderUnit per file, page, sitemap or note, each carrying a byte-cost
// estimate (its workload). The Queue admits units while the running total
// of workloads and the number of running units both stay within their caps,
// runs admitted units concurrently on a worker pool, folds each unit's
// outcome into its group and resolves the group's Pending once the last
// unit is done.
//
// Unit failures never reach the queue. A failed or panicking unit reports
// the zero core.IngestionOutcome and its group completes normally.
//
// The queue admits in submission order and does not balance between
// groups: a large directory submitted first holds back later requests
// until its units have been admitted.
package ingestion
