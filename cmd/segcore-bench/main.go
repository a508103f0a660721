// segcore-bench exercises insert/seal/search end to end against a single
// in-process segment, mirroring cmd/bench-tool's flag-driven
// ingest/search harness but against this module's own Segment surface
// instead of an Arrow Flight client.
package main

import (
	"flag"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ishine/segcore/internal/config"
	"github.com/ishine/segcore/internal/core"
	"github.com/ishine/segcore/internal/executor"
	"github.com/ishine/segcore/internal/index/hnswadapter"
	"github.com/ishine/segcore/internal/loader"
	"github.com/ishine/segcore/internal/logging"
	"github.com/ishine/segcore/internal/plan"
	"github.com/ishine/segcore/internal/schema"
	"github.com/ishine/segcore/internal/segment"
)

var (
	numRows     = flag.Int("rows", 10000, "Number of rows to insert")
	dim         = flag.Int("dim", 128, "Vector dimension")
	topK        = flag.Int("topk", 10, "top-K for each search")
	numQueries  = flag.Int("queries", 200, "Number of query vectors to search with")
	batchSize   = flag.Int("batch-size", 1000, "Rows per insert batch")
	mode        = flag.String("mode", "growing", "Segment kind to benchmark: 'growing' or 'sealed'")
	useIndex    = flag.Bool("index", false, "Attach a coder/hnsw index before searching (sealed mode only)")
	fixturePath = flag.String("fixture", "", "Optional Parquet fixture path; written if absent, read if present")
	metricsAddr = flag.String("metrics", "", "Address to serve Prometheus metrics on (empty disables)")
	envFile     = flag.String("envfile", "", "Optional .env file to seed SEGCORE_* tunables from")
)

func main() {
	flag.Parse()
	logger := logging.Console("segcore-bench")

	if *envFile != "" {
		if err := config.LoadDotEnv(*envFile); err != nil {
			logger.Warn().Err(err).Msg("could not load envfile, continuing with defaults")
		}
	}
	rt, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid runtime configuration")
	}

	if *metricsAddr != "" {
		go func() {
			http.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(*metricsAddr, nil); err != nil {
				logger.Error().Err(err).Msg("metrics server stopped")
			}
		}()
		logger.Info().Str("address", *metricsAddr).Msg("serving metrics")
	}

	s, err := schema.New([]schema.FieldMeta{
		{ID: 1, Name: "pk", DataType: core.DataTypeInt64, IsPrimary: true},
		{ID: 2, Name: "tag", DataType: core.DataTypeInt64},
		{ID: 3, Name: "vec", DataType: core.DataTypeFloatVector, Dim: *dim, Metric: core.MetricL2},
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("building schema")
	}

	rows, err := loadOrGenerateFixture(logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("preparing fixture")
	}

	seg, err := buildSegment(s, rows, rt, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("building segment")
	}

	queries := randomQueries(*numQueries, *dim)
	runSearch(seg, s, queries, logger)
}

// loadOrGenerateFixture reads *fixturePath if it already exists, else
// generates *numRows random rows and writes them there for reuse by a
// later invocation — mirroring cmd/bench-tool's "generate a batch, then
// send it" shape, but persisted instead of regenerated every run.
func loadOrGenerateFixture(logger zerolog.Logger) ([]loader.Row, error) {
	if *fixturePath != "" {
		if existing, err := loader.ReadFixture(*fixturePath); err == nil {
			logger.Info().Str("path", *fixturePath).Int("rows", len(existing)).Msg("loaded existing fixture")
			return existing, nil
		}
	}

	rows := make([]loader.Row, *numRows)
	for i := range rows {
		vec := make([]float32, *dim)
		for j := range vec {
			vec[j] = rand.Float32()
		}
		rows[i] = loader.Row{PK: int64(i), Tag: int64(i % 2), Vector: vec}
	}

	if *fixturePath != "" {
		if err := loader.WriteFixture(*fixturePath, rows); err != nil {
			return nil, fmt.Errorf("writing fixture: %w", err)
		}
		logger.Info().Str("path", *fixturePath).Int("rows", len(rows)).Msg("wrote fixture")
	}
	return rows, nil
}

// buildSegment inserts rows into a growing segment in batchSize chunks,
// timing the ingest, then either returns the growing segment directly or
// seals it (optionally attaching a real ANN index) per *mode.
func buildSegment(s *schema.Schema, rows []loader.Row, rt config.Runtime, logger zerolog.Logger) (segment.Segment, error) {
	uids, vectors, blob, err := loader.RowMajorBlob(rows, *dim)
	if err != nil {
		return nil, err
	}

	g := segment.NewGrowing("bench", s, rt.SizePerChunk, rt.BitmapCacheCapacity, rt.SearchFanOut)

	rowStride := 8 + 8 + (*dim)*4
	start := time.Now()
	for base := 0; base < len(rows); base += *batchSize {
		end := base + *batchSize
		if end > len(rows) {
			end = len(rows)
		}
		n := end - base

		begin, err := g.PreInsert(n)
		if err != nil {
			return nil, fmt.Errorf("pre_insert: %w", err)
		}

		timestamps := make([]core.Timestamp, n)
		for i := range timestamps {
			timestamps[i] = core.Timestamp(base + i + 1)
		}
		batchBlob := blob[base*rowStride : end*rowStride]
		if err := g.Insert(begin, n, uids[base:end], timestamps, batchBlob); err != nil {
			return nil, fmt.Errorf("insert: %w", err)
		}
	}
	ingestDur := time.Since(start)
	logger.Info().
		Int("rows", len(rows)).
		Dur("duration", ingestDur).
		Float64("rows_per_sec", float64(len(rows))/ingestDur.Seconds()).
		Msg("ingest complete")

	if *mode == "growing" {
		return g, nil
	}

	sealed, err := g.Seal()
	if err != nil {
		return nil, fmt.Errorf("seal: %w", err)
	}
	logger.Info().Int("row_count", sealed.RowCount()).Msg("segment sealed")

	if *useIndex {
		vecOff := s.OffsetByID(3)
		idxStart := time.Now()
		hnsw, err := hnswadapter.Build(core.MetricL2, *dim, vectors)
		if err != nil {
			return nil, fmt.Errorf("building hnsw index: %w", err)
		}
		if err := sealed.DropFieldData(vecOff); err != nil {
			return nil, fmt.Errorf("dropping raw vector data before index attach: %w", err)
		}
		if err := sealed.LoadIndex(vecOff, hnsw); err != nil {
			return nil, fmt.Errorf("load_index: %w", err)
		}
		logger.Info().Dur("duration", time.Since(idxStart)).Msg("hnsw index built and attached")
	}
	return sealed, nil
}

func randomQueries(n, dim int) [][]float32 {
	out := make([][]float32, n)
	for i := range out {
		v := make([]float32, dim)
		for j := range v {
			v[j] = rand.Float32()
		}
		out[i] = v
	}
	return out
}

// runSearch builds an AlwaysTrue plan over the segment's vector field and
// times numQueries sequential searches, reporting aggregate latency the
// way cmd/bench-tool's sumLatency/printResults pair does.
func runSearch(seg segment.Segment, s *schema.Schema, queries [][]float32, logger zerolog.Logger) {
	vecOff := s.OffsetByID(3)
	p, err := plan.New(s, plan.AlwaysTrue{}, plan.VectorQueryInfo{
		FieldOffset:  vecOff,
		Metric:       core.MetricL2,
		TopK:         *topK,
		RoundDecimal: -1,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("building search plan")
	}

	exec := executor.New("bench")
	queryTr := core.Timestamp(math.MaxInt64)

	var totalDur time.Duration
	var maxDur time.Duration
	for _, q := range queries {
		group := plan.PlaceholderGroup{
			NumQueries: 1,
			Dim:        int32(*dim),
			DataType:   core.DataTypeFloatVector,
			Data:       packQueries([][]float32{q}),
		}
		start := time.Now()
		if _, err := exec.Search(p, seg, group, queryTr); err != nil {
			logger.Fatal().Err(err).Msg("search failed")
		}
		d := time.Since(start)
		totalDur += d
		if d > maxDur {
			maxDur = d
		}
	}

	avg := totalDur / time.Duration(len(queries))
	logger.Info().
		Int("queries", len(queries)).
		Dur("avg_latency", avg).
		Dur("max_latency", maxDur).
		Float64("qps", float64(len(queries))/totalDur.Seconds()).
		Msg("search benchmark complete")
}

func packQueries(queries [][]float32) []byte {
	if len(queries) == 0 {
		return nil
	}
	stride := len(queries[0]) * 4
	out := make([]byte, len(queries)*stride)
	for i, q := range queries {
		for j, f := range q {
			bits := math.Float32bits(f)
			off := i*stride + j*4
			out[off] = byte(bits)
			out[off+1] = byte(bits >> 8)
			out[off+2] = byte(bits >> 16)
			out[off+3] = byte(bits >> 24)
		}
	}
	return out
}
