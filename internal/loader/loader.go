// Package loader reads a Parquet fixture file into the row-major blob
// shape SegmentGrowing.Insert expects. It
// is a read-only fixture helper for tests and cmd/segcore-bench, not a
// storage engine the segment depends on — the segment itself never
// touches a file. Grounded on internal/store/parquet_adapter.go and
// internal/storage/parquet.go's parquet.NewGenericWriter/NewGenericReader
// usage.
package loader

import (
	"fmt"
	"io"
	"math"
	"os"

	"github.com/parquet-go/parquet-go"

	"github.com/ishine/segcore/internal/core"
)

// Row is one fixture row: a primary key, an int64 scalar tag column (the
// shape S6's predicate+vector scenario needs), and a float vector. Binary
// vectors and additional scalar columns are out of scope for the fixture
// format — real callers assemble their own row-major blobs from whatever
// source they load from; this helper only serves the bench CLI and
// integration tests that want a quick on-disk fixture.
type Row struct {
	PK     int64     `parquet:"pk"`
	Tag    int64     `parquet:"tag"`
	Vector []float32 `parquet:"vector"`
}

// WriteFixture writes rows to a new Parquet file at path, zstd-compressed
// the way writeParquet does in the teacher's storage package.
func WriteFixture(path string, rows []Row) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("loader: create fixture: %w", err)
	}
	defer f.Close()

	w := parquet.NewGenericWriter[Row](f, parquet.Compression(&parquet.Zstd))
	if _, err := w.Write(rows); err != nil {
		_ = w.Close()
		return fmt.Errorf("loader: write fixture rows: %w", err)
	}
	return w.Close()
}

// ReadFixture reads every row back from a Parquet file written by
// WriteFixture.
func ReadFixture(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("loader: open fixture: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("loader: stat fixture: %w", err)
	}
	pf, err := parquet.OpenFile(f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("loader: open parquet file: %w", err)
	}

	r := parquet.NewGenericReader[Row](pf)
	rows := make([]Row, r.NumRows())
	n, err := r.Read(rows)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("loader: read fixture rows: %w", err)
	}
	return rows[:n], nil
}

// RowMajorBlob packs rows into the stride = 8 (pk) + 8 (tag) + dim*4
// (vector) row-major byte layout a schema of {pk:int64, tag:int64,
// vec:float[dim]} expects from SegmentGrowing.Insert — every
// schema field is a blob column, the primary-key field included, the same
// way internal/segment's own growing_test.go fixtures lay out rowBlob.
// SegmentSealed.LoadFieldData takes one field's column at a time and does
// not accept this multi-field layout.
// uids is still returned separately since Insert takes it
// as its own parameter for the uid->offset multimap and delete matching,
// in addition to (not instead of) its place in the blob.
func RowMajorBlob(rows []Row, dim int) (uids []core.PrimaryKey, vectors [][]float32, blob []byte, err error) {
	uids = make([]core.PrimaryKey, len(rows))
	vectors = make([][]float32, len(rows))
	stride := 8 + 8 + dim*4
	blob = make([]byte, len(rows)*stride)

	for i, row := range rows {
		if len(row.Vector) != dim {
			return nil, nil, nil, fmt.Errorf("loader: row %d has vector dim %d, want %d", i, len(row.Vector), dim)
		}
		uids[i] = core.PrimaryKey(row.PK)
		vectors[i] = row.Vector

		off := i * stride
		putInt64LE(blob[off:off+8], row.PK)
		putInt64LE(blob[off+8:off+16], row.Tag)
		putFloat32VecLE(blob[off+16:off+stride], row.Vector)
	}
	return uids, vectors, blob, nil
}

func putInt64LE(b []byte, v int64) {
	u := uint64(v)
	for i := 0; i < 8; i++ {
		b[i] = byte(u >> (8 * i))
	}
}

func putFloat32VecLE(b []byte, v []float32) {
	for i, f := range v {
		bits := math.Float32bits(f)
		b[i*4] = byte(bits)
		b[i*4+1] = byte(bits >> 8)
		b[i*4+2] = byte(bits >> 16)
		b[i*4+3] = byte(bits >> 24)
	}
}
