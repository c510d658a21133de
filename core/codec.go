package core

import (
	"math"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
)

// LoaderRecordMUS encodes LoaderRecord values in MUS format.
var LoaderRecordMUS = loaderRecordMUS{}

// VectorMUS encodes embedding vectors as a length prefix followed by
// fixed-width float32 bits.
var VectorMUS = vectorMUS{}

type loaderRecordMUS struct{}

func (s loaderRecordMUS) Marshal(v LoaderRecord, bs []byte) (n int) {
	n = ord.String.Marshal(v.BaseID, bs)
	n += ord.String.Marshal(v.UniqueID, bs[n:])
	n += ord.String.Marshal(v.LoaderType, bs[n:])
	n += ord.String.Marshal(v.Source, bs[n:])
	n += varint.Uint64.Marshal(v.EntriesAdded, bs[n:])
	return n + varint.Int64.Marshal(addedAtMicros(v.AddedAt), bs[n:])
}

func (s loaderRecordMUS) Unmarshal(bs []byte) (v LoaderRecord, n int, err error) {
	var n1 int
	if v.BaseID, n1, err = ord.String.Unmarshal(bs); err != nil {
		return
	}
	n += n1
	if v.UniqueID, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += n1
	if v.LoaderType, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += n1
	if v.Source, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += n1
	if v.EntriesAdded, n1, err = varint.Uint64.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += n1
	var micros int64
	if micros, n1, err = varint.Int64.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += n1
	if micros != 0 {
		v.AddedAt = time.UnixMicro(micros).UTC()
	}
	return
}

func (s loaderRecordMUS) Size(v LoaderRecord) (size int) {
	size = ord.String.Size(v.BaseID)
	size += ord.String.Size(v.UniqueID)
	size += ord.String.Size(v.LoaderType)
	size += ord.String.Size(v.Source)
	size += varint.Uint64.Size(v.EntriesAdded)
	return size + varint.Int64.Size(addedAtMicros(v.AddedAt))
}

func (s loaderRecordMUS) Skip(bs []byte) (n int, err error) {
	_, n, err = s.Unmarshal(bs)
	return
}

func addedAtMicros(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMicro()
}

type vectorMUS struct{}

func (s vectorMUS) Marshal(v []float32, bs []byte) (n int) {
	n = varint.PositiveInt.Marshal(len(v), bs)
	for _, f := range v {
		n += raw.Uint32.Marshal(math.Float32bits(f), bs[n:])
	}
	return n
}

func (s vectorMUS) Unmarshal(bs []byte) (v []float32, n int, err error) {
	length, n, err := varint.PositiveInt.Unmarshal(bs)
	if err != nil {
		return nil, n, err
	}
	if length < 0 || length > (len(bs)-n)/4 {
		return nil, n, ErrTruncatedEncoding
	}
	v = make([]float32, length)
	for i := range v {
		bits, n1, err := raw.Uint32.Unmarshal(bs[n:])
		if err != nil {
			return nil, n, err
		}
		n += n1
		v[i] = math.Float32frombits(bits)
	}
	return v, n, nil
}

func (s vectorMUS) Size(v []float32) int {
	size := varint.PositiveInt.Size(len(v))
	for _, f := range v {
		size += raw.Uint32.Size(math.Float32bits(f))
	}
	return size
}

func (s vectorMUS) Skip(bs []byte) (n int, err error) {
	_, n, err = s.Unmarshal(bs)
	return
}
