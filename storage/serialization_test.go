package storage

import (
	"testing"
	"time"

	"github.com/poiesic/kbase/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalUnmarshalLoaderRecord(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Microsecond)
	record := &core.LoaderRecord{
		BaseID:       "kb1",
		UniqueID:     core.UniqueIDFor(core.LoaderTypeWeb, "https://example.com"),
		LoaderType:   core.LoaderTypeWeb,
		Source:       "https://example.com",
		EntriesAdded: 17,
		AddedAt:      now,
	}

	data := MarshalLoaderRecord(record)
	require.NotEmpty(t, data)

	decoded, err := UnmarshalLoaderRecord(data)
	require.NoError(t, err)
	assert.Equal(t, record, decoded)
}

func TestMarshalLoaderRecord_ZeroTime(t *testing.T) {
	decoded, err := UnmarshalLoaderRecord(MarshalLoaderRecord(&core.LoaderRecord{BaseID: "kb1"}))
	require.NoError(t, err)
	assert.True(t, decoded.AddedAt.IsZero())
}

func TestUnmarshalLoaderRecord_Invalid(t *testing.T) {
	_, err := UnmarshalLoaderRecord([]byte{})
	assert.ErrorIs(t, err, ErrSerializationFailed)
}

func TestMarshalUnmarshalVector(t *testing.T) {
	vector := []float32{0.25, -1.5, 3.0e-7, 0}

	decoded, err := UnmarshalVector(MarshalVector(vector))
	require.NoError(t, err)
	assert.Equal(t, vector, decoded)
}

func TestUnmarshalVector_Truncated(t *testing.T) {
	data := MarshalVector([]float32{1, 2, 3})

	_, err := UnmarshalVector(data[:len(data)-2])
	assert.ErrorIs(t, err, ErrSerializationFailed)
}
