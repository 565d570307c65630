// ingest/loader.go
package ingest

import (
	"compress/gzip"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/signalsfoundry/flightdata-analyzer/internal/logging"
	"github.com/signalsfoundry/flightdata-analyzer/model"
	"github.com/signalsfoundry/flightdata-analyzer/schema"
	"github.com/signalsfoundry/flightdata-analyzer/timeseries"
)

const tracerName = "github.com/signalsfoundry/flightdata-analyzer/ingest"

// Required core columns. Header matching is case-insensitive; these
// canonical spellings are used in reports and errors.
const (
	ColTimestamp = "Timestamp"
	ColLatitude  = "POS_Latitude_deg"
	ColLongitude = "POS_Longitude_deg"
	ColAltitude  = "POS_Altitude_ft"
)

var requiredColumns = []string{ColTimestamp, ColLatitude, ColLongitude, ColAltitude}

// defaultTimestampLayouts are tried in order for every timestamp cell.
// Integer cells are additionally accepted as Unix seconds.
var defaultTimestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006/01/02 15:04:05",
	"01/02/2006 15:04:05",
	"2006-01-02",
}

// Result bundles the artifacts of one successful load. Store and Registry
// are immutable; the report is the caller's copy.
type Result struct {
	Store    *timeseries.Store
	Registry *schema.Registry
	Report   model.ValidationReport
}

// Loader validates raw tabular telemetry into a Result. A single Loader is
// safe for concurrent use; each Load builds fresh state.
type Loader struct {
	log         logging.Logger
	layouts     []string
	maxWarnings int
}

// Option configures a Loader.
type Option func(*Loader)

// WithLogger sets the loader's logger.
func WithLogger(l logging.Logger) Option {
	return func(ld *Loader) {
		if l != nil {
			ld.log = l
		}
	}
}

// WithTimestampLayouts replaces the layouts tried for timestamp cells.
func WithTimestampLayouts(layouts []string) Option {
	return func(ld *Loader) {
		if len(layouts) > 0 {
			ld.layouts = layouts
		}
	}
}

// WithMaxWarnings caps the number of row warnings retained in the report.
// Counts stay exact past the cap.
func WithMaxWarnings(n int) Option {
	return func(ld *Loader) {
		if n >= 0 {
			ld.maxWarnings = n
		}
	}
}

// NewLoader constructs a Loader with default layouts and a Noop logger.
func NewLoader(opts ...Option) *Loader {
	ld := &Loader{
		log:         logging.Noop(),
		layouts:     defaultTimestampLayouts,
		maxWarnings: 100,
	}
	for _, opt := range opts {
		opt(ld)
	}
	return ld
}

// LoadFile opens and validates a telemetry file. Files ending in .gz or
// .zst are decompressed transparently.
func (l *Loader) LoadFile(ctx context.Context, path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ingest: open %q: %w", path, err)
	}
	defer f.Close()

	r := io.Reader(f)
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".zst"):
		zr, err := zstd.NewReader(f, zstd.WithDecoderConcurrency(0))
		if err != nil {
			return nil, fmt.Errorf("ingest: open zstd stream %q: %w", path, err)
		}
		defer zr.Close()
		r = zr
	case strings.HasSuffix(lower, ".gz"):
		gr, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("ingest: open gzip stream %q: %w", path, err)
		}
		defer gr.Close()
		r = gr
	}

	return l.Load(ctx, r, path)
}

// extraColumn is a non-core column: original header spelling plus its index
// in the record.
type extraColumn struct {
	name string
	idx  int
}

// rawRow is one accepted row before sorting and deduplication.
type rawRow struct {
	ts    time.Time
	pos   model.Position
	cells []model.Value
}

// Load validates CSV telemetry from r. Column-level problems (a missing
// required column, a structurally unreadable stream) abort with an error;
// row-level problems reject the row, count it in the report, and continue.
// Duplicate timestamps keep the first occurrence in file order. The returned
// store is sorted by strictly increasing timestamp regardless of input
// order.
func (l *Loader) Load(ctx context.Context, r io.Reader, source string) (*Result, error) {
	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, "ingest.load")
	defer span.End()
	span.SetAttributes(attribute.String("source", source))

	start := time.Now()

	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		// No header at all: report it as the first missing required column.
		return nil, &SchemaError{Code: MissingRequiredField, Field: ColTimestamp}
	}
	if err != nil {
		return nil, fmt.Errorf("ingest: read header: %w", err)
	}

	colIndex := make(map[string]int, len(header))
	for i, name := range header {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" {
			continue
		}
		if _, seen := colIndex[key]; !seen {
			colIndex[key] = i
		}
	}

	required := make(map[string]int, len(requiredColumns))
	for _, col := range requiredColumns {
		idx, ok := colIndex[strings.ToLower(col)]
		if !ok {
			return nil, &SchemaError{Code: MissingRequiredField, Field: col}
		}
		required[col] = idx
	}

	requiredIdx := make(map[int]bool, len(required))
	for _, idx := range required {
		requiredIdx[idx] = true
	}
	var extras []extraColumn
	for i, name := range header {
		name = strings.TrimSpace(name)
		if name == "" || requiredIdx[i] {
			continue
		}
		// Repeated headers keep their first occurrence only.
		if colIndex[strings.ToLower(name)] != i {
			continue
		}
		extras = append(extras, extraColumn{name: name, idx: i})
	}

	tsIdx := required[ColTimestamp]
	latIdx := required[ColLatitude]
	lonIdx := required[ColLongitude]
	altIdx := required[ColAltitude]

	var (
		rows       []rawRow
		total      int
		rejected   int
		warnings   []model.RowWarning
		truncated  bool
		redacted   int
		redactedBy = make(map[string]int)
	)

	warn := func(row int, reason string) {
		l.log.Debug(ctx, "row rejected", logging.Int("row", row), logging.String("reason", reason))
		if len(warnings) < l.maxWarnings {
			warnings = append(warnings, model.RowWarning{Row: row, Reason: reason})
		} else {
			truncated = true
		}
	}

	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		total++
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				rejected++
				warn(total, fmt.Sprintf("malformed row: %v", err))
				continue
			}
			return nil, fmt.Errorf("ingest: read row %d: %w", total, err)
		}

		ts, perr := parseTimestamp(cell(rec, tsIdx), l.layouts)
		if perr != nil {
			rejected++
			warn(total, fmt.Sprintf("unparsable timestamp %q", cell(rec, tsIdx)))
			continue
		}

		lat, perr := parseRequiredFloat(cell(rec, latIdx))
		if perr != nil {
			rejected++
			warn(total, fmt.Sprintf("%s: %v", ColLatitude, perr))
			continue
		}
		if lat < -90 || lat > 90 {
			rejected++
			warn(total, fmt.Sprintf("%s %v out of range [-90,90]", ColLatitude, lat))
			continue
		}

		lon, perr := parseRequiredFloat(cell(rec, lonIdx))
		if perr != nil {
			rejected++
			warn(total, fmt.Sprintf("%s: %v", ColLongitude, perr))
			continue
		}
		if lon < -180 || lon > 180 {
			rejected++
			warn(total, fmt.Sprintf("%s %v out of range [-180,180]", ColLongitude, lon))
			continue
		}

		alt, perr := parseRequiredFloat(cell(rec, altIdx))
		if perr != nil {
			rejected++
			warn(total, fmt.Sprintf("%s: %v", ColAltitude, perr))
			continue
		}

		cells := make([]model.Value, len(extras))
		for k, ex := range extras {
			raw := strings.TrimSpace(cell(rec, ex.idx))
			if raw == "" {
				cells[k] = model.Redacted()
				redacted++
				redactedBy[ex.name]++
				continue
			}
			f, ferr := strconv.ParseFloat(raw, 64)
			if ferr != nil || math.IsNaN(f) || math.IsInf(f, 0) || f == model.RedactedSentinel {
				cells[k] = model.Redacted()
				redacted++
				redactedBy[ex.name]++
				continue
			}
			cells[k] = model.Measured(f)
		}

		rows = append(rows, rawRow{
			ts: ts,
			pos: model.Position{
				LatitudeDeg:  lat,
				LongitudeDeg: lon,
				AltitudeFt:   alt,
			},
			cells: cells,
		})
	}

	_, buildSpan := tracer.Start(ctx, "ingest.build")

	// Stable sort, then drop later duplicates. Stability means the first
	// occurrence in file order survives for equal timestamps.
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].ts.Before(rows[j].ts) })

	duplicates := 0
	times := make([]time.Time, 0, len(rows))
	positions := make([]model.Position, 0, len(rows))
	series := make(map[string][]model.Value, len(extras))
	for _, ex := range extras {
		series[ex.name] = make([]model.Value, 0, len(rows))
	}
	for i, row := range rows {
		if i > 0 && row.ts.Equal(times[len(times)-1]) {
			duplicates++
			continue
		}
		times = append(times, row.ts)
		positions = append(positions, row.pos)
		for k, ex := range extras {
			series[ex.name] = append(series[ex.name], row.cells[k])
		}
	}

	store, err := timeseries.New(times, positions, series)
	if err != nil {
		buildSpan.End()
		return nil, fmt.Errorf("ingest: build store: %w", err)
	}

	columns := make([]string, 0, len(extras))
	for _, ex := range extras {
		columns = append(columns, ex.name)
	}
	registry := schema.Build(columns)
	buildSpan.End()

	report := model.ValidationReport{
		DatasetID:          uuid.NewString(),
		Source:             source,
		TotalRows:          total,
		AcceptedRows:       store.Len(),
		RejectedRows:       rejected,
		DuplicateRows:      duplicates,
		RedactedCellCount:  redacted,
		DetectedSubsystems: registry.SubsystemIDs(),
		DetectedLinks:      registry.LinkIDs(),
		Warnings:           warnings,
		WarningsTruncated:  truncated,
		Empty:              store.Len() == 0,
	}
	if len(redactedBy) > 0 {
		report.RedactedByColumn = redactedBy
	}
	if min, max, ok := store.TimeRange(); ok {
		report.StartTime = min
		report.EndTime = max
	}

	span.SetAttributes(
		attribute.Int("rows.total", total),
		attribute.Int("rows.accepted", store.Len()),
		attribute.Int("rows.rejected", rejected),
		attribute.Int("rows.duplicate", duplicates),
	)

	if report.Empty {
		l.log.Warn(ctx, "dataset is empty after validation",
			logging.String("dataset_id", report.DatasetID),
			logging.String("source", source),
			logging.Int("total_rows", total),
		)
	}
	l.log.Info(ctx, "telemetry load complete",
		logging.String("dataset_id", report.DatasetID),
		logging.String("source", source),
		logging.Int("accepted_rows", report.AcceptedRows),
		logging.Int("rejected_rows", rejected),
		logging.Int("duplicate_rows", duplicates),
		logging.Int("links", len(report.DetectedLinks)),
		logging.Int("subsystems", len(report.DetectedSubsystems)),
		logging.Duration("elapsed", time.Since(start)),
	)

	return &Result{Store: store, Registry: registry, Report: report}, nil
}

func cell(rec []string, idx int) string {
	if idx < 0 || idx >= len(rec) {
		return ""
	}
	return rec[idx]
}

func parseTimestamp(raw string, layouts []string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	for _, layout := range layouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC(), nil
		}
	}
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp format %q", raw)
}

// parseRequiredFloat coerces a required position cell. The redacted sentinel
// is not an acceptable position: a record either has a real fix or it is
// rejected.
func parseRequiredFloat(raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("empty cell")
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("non-numeric cell %q", raw)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("non-finite cell %q", raw)
	}
	if f == model.RedactedSentinel {
		return 0, fmt.Errorf("redacted cell")
	}
	return f, nil
}
