// Package mock provides test doubles for engine.Engine and engine.Handle.
//
// MockEngine hands out one MockHandle per base id. Both record how often
// each method was called and accept injected behavior through function
// fields:
//
//	eng := mock.NewMockEngine()
//	h := eng.Handle("kb1")
//	h.IngestSingleFunc = func(ctx context.Context, d core.ContentDescriptor, opts engine.IngestOptions) (core.IngestionOutcome, error) {
//	    return core.IngestionOutcome{}, errors.New("embedding server down")
//	}
package mock
