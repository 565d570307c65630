// ingest/loader_test.go
package ingest

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
)

const basicCSV = `Timestamp,POS_Latitude_deg,POS_Longitude_deg,POS_Altitude_ft,GNC_Roll_deg,COMM_LEO_SATCOM_dB
2026-03-01T10:00:00Z,34.05,-117.60,25000,1.5,5.0
2026-03-01T10:00:01Z,34.06,-117.61,25010,1.6,1.0
2026-03-01T10:00:02Z,34.07,-117.62,25020,1.7,1.0
2026-03-01T10:00:03Z,34.08,-117.63,25030,1.8,5.0
`

func loadString(t *testing.T, csv string) *Result {
	t.Helper()
	res, err := NewLoader().Load(context.Background(), strings.NewReader(csv), "test.csv")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return res
}

func TestLoadBasicMission(t *testing.T) {
	res := loadString(t, basicCSV)

	rep := res.Report
	if rep.TotalRows != 4 || rep.AcceptedRows != 4 || rep.RejectedRows != 0 {
		t.Fatalf("report counts = %d/%d/%d, want 4/4/0", rep.TotalRows, rep.AcceptedRows, rep.RejectedRows)
	}
	if rep.DatasetID == "" {
		t.Fatalf("report has no dataset ID")
	}
	if rep.Empty {
		t.Fatalf("report marked empty for a 4-row mission")
	}
	if !reflect.DeepEqual(rep.DetectedSubsystems, []string{"GNC"}) {
		t.Fatalf("DetectedSubsystems = %v, want [GNC]", rep.DetectedSubsystems)
	}
	if !reflect.DeepEqual(rep.DetectedLinks, []string{"LEO_SATCOM"}) {
		t.Fatalf("DetectedLinks = %v, want [LEO_SATCOM]", rep.DetectedLinks)
	}

	if res.Store.Len() != 4 {
		t.Fatalf("store length = %d, want 4", res.Store.Len())
	}
	min, max, ok := res.Store.TimeRange()
	if !ok {
		t.Fatalf("TimeRange ok = false")
	}
	if max.Sub(min) != 3*time.Second {
		t.Fatalf("mission span = %v, want 3s", max.Sub(min))
	}
	if !rep.StartTime.Equal(min) || !rep.EndTime.Equal(max) {
		t.Fatalf("report range %v..%v does not match store %v..%v", rep.StartTime, rep.EndTime, min, max)
	}

	rec, _ := res.Store.RecordAt(0)
	if rec.Position.AltitudeFt != 25000 {
		t.Fatalf("altitude = %v, want 25000", rec.Position.AltitudeFt)
	}
	if v := rec.Fields["COMM_LEO_SATCOM_dB"]; !v.Valid || v.Float64 != 5.0 {
		t.Fatalf("margin at t0 = %+v, want measured 5.0", v)
	}
}

func TestLoadMissingRequiredColumnFailsWholeLoad(t *testing.T) {
	csv := `Timestamp,POS_Latitude_deg,POS_Longitude_deg
2026-03-01T10:00:00Z,34.05,-117.60
`
	_, err := NewLoader().Load(context.Background(), strings.NewReader(csv), "test.csv")
	if err == nil {
		t.Fatalf("Load succeeded without %s", ColAltitude)
	}
	var se *SchemaError
	if !errors.As(err, &se) {
		t.Fatalf("error %T is not a SchemaError: %v", err, err)
	}
	if se.Code != MissingRequiredField || se.Field != ColAltitude {
		t.Fatalf("SchemaError = %q/%q, want %q/%q", se.Code, se.Field, MissingRequiredField, ColAltitude)
	}
}

func TestLoadHeaderMatchingIsCaseInsensitive(t *testing.T) {
	csv := `timestamp,pos_latitude_deg,POS_LONGITUDE_DEG,Pos_Altitude_Ft
2026-03-01T10:00:00Z,1,2,3
`
	res := loadString(t, csv)
	if res.Report.AcceptedRows != 1 {
		t.Fatalf("accepted = %d, want 1", res.Report.AcceptedRows)
	}
}

// A row with an unparsable timestamp is rejected; the rest of the file
// still loads in order.
func TestLoadRejectsBadTimestampRow(t *testing.T) {
	csv := `Timestamp,POS_Latitude_deg,POS_Longitude_deg,POS_Altitude_ft
2026-03-01T10:00:00Z,1,2,3
not-a-time,1,2,3
2026-03-01T10:00:02Z,1,2,3
`
	res := loadString(t, csv)

	rep := res.Report
	if rep.TotalRows != 3 || rep.AcceptedRows != 2 || rep.RejectedRows != 1 {
		t.Fatalf("report counts = %d/%d/%d, want 3/2/1", rep.TotalRows, rep.AcceptedRows, rep.RejectedRows)
	}
	if len(rep.Warnings) != 1 || rep.Warnings[0].Row != 2 {
		t.Fatalf("warnings = %+v, want one warning for row 2", rep.Warnings)
	}
	if res.Store.Len() != 2 {
		t.Fatalf("store length = %d, want 2", res.Store.Len())
	}
}

func TestLoadRejectsBadPositionRows(t *testing.T) {
	csv := `Timestamp,POS_Latitude_deg,POS_Longitude_deg,POS_Altitude_ft
2026-03-01T10:00:00Z,95.0,0,100
2026-03-01T10:00:01Z,10.0,-190.0,100
2026-03-01T10:00:02Z,10.0,20.0,oops
2026-03-01T10:00:03Z,-999.0,20.0,100
2026-03-01T10:00:04Z,10.0,20.0,100
`
	res := loadString(t, csv)

	if res.Report.RejectedRows != 4 {
		t.Fatalf("rejected = %d, want 4 (range, range, parse, redacted)", res.Report.RejectedRows)
	}
	if res.Report.AcceptedRows != 1 {
		t.Fatalf("accepted = %d, want 1", res.Report.AcceptedRows)
	}
}

func TestLoadSortsUnsortedInput(t *testing.T) {
	csv := `Timestamp,POS_Latitude_deg,POS_Longitude_deg,POS_Altitude_ft,GNC_Roll_deg
2026-03-01T10:00:02Z,1,2,3,30
2026-03-01T10:00:00Z,1,2,3,10
2026-03-01T10:00:01Z,1,2,3,20
`
	res := loadString(t, csv)

	if res.Store.Len() != 3 {
		t.Fatalf("store length = %d, want 3", res.Store.Len())
	}
	var rolls []float64
	for _, v := range res.Store.ValueSeries("GNC_Roll_deg") {
		rolls = append(rolls, v.Float64)
	}
	if !reflect.DeepEqual(rolls, []float64{10, 20, 30}) {
		t.Fatalf("rolls after sort = %v, want [10 20 30]", rolls)
	}
}

// The first file occurrence wins for duplicate timestamps, even when the
// input arrives unsorted.
func TestLoadDuplicateTimestampsFirstWins(t *testing.T) {
	csv := `Timestamp,POS_Latitude_deg,POS_Longitude_deg,POS_Altitude_ft,GNC_Roll_deg
2026-03-01T10:00:01Z,1,2,3,111
2026-03-01T10:00:00Z,1,2,3,10
2026-03-01T10:00:01Z,1,2,3,222
`
	res := loadString(t, csv)

	rep := res.Report
	if rep.DuplicateRows != 1 {
		t.Fatalf("duplicates = %d, want 1", rep.DuplicateRows)
	}
	if rep.AcceptedRows != 2 || rep.RejectedRows != 0 {
		t.Fatalf("accepted/rejected = %d/%d, want 2/0", rep.AcceptedRows, rep.RejectedRows)
	}

	idx, _ := res.Store.NearestIndex(time.Date(2026, 3, 1, 10, 0, 1, 0, time.UTC))
	v, _ := res.Store.Value("GNC_Roll_deg", idx)
	if v.Float64 != 111 {
		t.Fatalf("surviving duplicate value = %v, want 111 (first occurrence)", v.Float64)
	}
}

func TestLoadRedactionHandling(t *testing.T) {
	csv := `Timestamp,POS_Latitude_deg,POS_Longitude_deg,POS_Altitude_ft,PL_Power_W,COMM_UHF_LOS_dB
2026-03-01T10:00:00Z,1,2,3,-999.0,4.0
2026-03-01T10:00:01Z,1,2,3,,garbled
2026-03-01T10:00:02Z,1,2,3,55.0,NaN
`
	res := loadString(t, csv)

	rep := res.Report
	if rep.RedactedCellCount != 4 {
		t.Fatalf("redacted cells = %d, want 4", rep.RedactedCellCount)
	}
	if rep.RedactedByColumn["PL_Power_W"] != 2 || rep.RedactedByColumn["COMM_UHF_LOS_dB"] != 2 {
		t.Fatalf("per-column redactions = %v, want 2 and 2", rep.RedactedByColumn)
	}
	if rep.RejectedRows != 0 {
		t.Fatalf("rejected = %d, optional-cell problems must not reject rows", rep.RejectedRows)
	}

	// Every record keeps the full field schema, placeholders included.
	rec, _ := res.Store.RecordAt(1)
	if v, ok := rec.Fields["PL_Power_W"]; !ok || v.Valid {
		t.Fatalf("empty optional cell = %+v, want redacted placeholder", v)
	}
	if v := rec.Fields["COMM_UHF_LOS_dB"]; v.Valid {
		t.Fatalf("garbled optional cell surfaced as measured %v", v.Float64)
	}
}

func TestLoadHeaderOnlyIsEmptyDataset(t *testing.T) {
	csv := "Timestamp,POS_Latitude_deg,POS_Longitude_deg,POS_Altitude_ft,COMM_GEO_SATCOM_dB\n"
	res := loadString(t, csv)

	if !res.Report.Empty {
		t.Fatalf("report not marked empty")
	}
	if res.Store.Len() != 0 {
		t.Fatalf("store length = %d, want 0", res.Store.Len())
	}
	// Column discovery still works from the header alone.
	if !reflect.DeepEqual(res.Report.DetectedLinks, []string{"GEO_SATCOM"}) {
		t.Fatalf("DetectedLinks = %v, want [GEO_SATCOM]", res.Report.DetectedLinks)
	}
}

func TestLoadEmptyInputIsSchemaError(t *testing.T) {
	_, err := NewLoader().Load(context.Background(), strings.NewReader(""), "empty.csv")
	var se *SchemaError
	if !errors.As(err, &se) {
		t.Fatalf("error %T is not a SchemaError: %v", err, err)
	}
}

// Re-validating already-accepted output reproduces zero rejections.
func TestLoadIsIdempotentOnAcceptedOutput(t *testing.T) {
	first := loadString(t, basicCSV)

	var sb strings.Builder
	sb.WriteString("Timestamp,POS_Latitude_deg,POS_Longitude_deg,POS_Altitude_ft,GNC_Roll_deg,COMM_LEO_SATCOM_dB\n")
	for i := 0; i < first.Store.Len(); i++ {
		rec, _ := first.Store.RecordAt(i)
		cells := []string{
			rec.Timestamp.Format(time.RFC3339),
			strconv.FormatFloat(rec.Position.LatitudeDeg, 'g', -1, 64),
			strconv.FormatFloat(rec.Position.LongitudeDeg, 'g', -1, 64),
			strconv.FormatFloat(rec.Position.AltitudeFt, 'g', -1, 64),
			strconv.FormatFloat(rec.Fields["GNC_Roll_deg"].Float64, 'g', -1, 64),
			strconv.FormatFloat(rec.Fields["COMM_LEO_SATCOM_dB"].Float64, 'g', -1, 64),
		}
		sb.WriteString(strings.Join(cells, ","))
		sb.WriteString("\n")
	}

	second := loadString(t, sb.String())
	if second.Report.RejectedRows != 0 || second.Report.DuplicateRows != 0 {
		t.Fatalf("re-validation rejected %d and deduped %d rows, want 0/0",
			second.Report.RejectedRows, second.Report.DuplicateRows)
	}
	if second.Report.AcceptedRows != first.Report.AcceptedRows {
		t.Fatalf("accepted changed %d -> %d", first.Report.AcceptedRows, second.Report.AcceptedRows)
	}
}

func TestLoadFileGzip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mission.csv.gz")

	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write([]byte(basicCSV)); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := gw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	res, err := NewLoader().LoadFile(context.Background(), path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if res.Report.AcceptedRows != 4 {
		t.Fatalf("accepted = %d, want 4", res.Report.AcceptedRows)
	}
}

func TestLoadFileZstd(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mission.csv.zst")

	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf)
	if err != nil {
		t.Fatalf("zstd writer: %v", err)
	}
	if _, err := zw.Write([]byte(basicCSV)); err != nil {
		t.Fatalf("zstd write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zstd close: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	res, err := NewLoader().LoadFile(context.Background(), path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if res.Report.AcceptedRows != 4 {
		t.Fatalf("accepted = %d, want 4", res.Report.AcceptedRows)
	}
}

func TestLoadFileMissing(t *testing.T) {
	_, err := NewLoader().LoadFile(context.Background(), filepath.Join(t.TempDir(), "nope.csv"))
	if err == nil {
		t.Fatalf("LoadFile succeeded on a missing path")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("error does not wrap fs.ErrNotExist: %v", err)
	}
}

func TestLoadMalformedRowIsRecoverable(t *testing.T) {
	csv := `Timestamp,POS_Latitude_deg,POS_Longitude_deg,POS_Altitude_ft
2026-03-01T10:00:00Z,1,2,3
2026-03-01T10:00:01Z,1,2
2026-03-01T10:00:02Z,1,2,3
`
	res := loadString(t, csv)
	if res.Report.RejectedRows != 1 || res.Report.AcceptedRows != 2 {
		t.Fatalf("rejected/accepted = %d/%d, want 1/2", res.Report.RejectedRows, res.Report.AcceptedRows)
	}
}

func TestParseTimestampLayouts(t *testing.T) {
	cases := []string{
		"2026-03-01T10:00:00Z",
		"2026-03-01T10:00:00",
		"2026-03-01 10:00:00",
		"2026/03/01 10:00:00",
		"03/01/2026 10:00:00",
		"2026-03-01",
		"1772366400",
	}
	for _, raw := range cases {
		if _, err := parseTimestamp(raw, defaultTimestampLayouts); err != nil {
			t.Fatalf("parseTimestamp(%q): %v", raw, err)
		}
	}
	if _, err := parseTimestamp("yesterday-ish", defaultTimestampLayouts); err == nil {
		t.Fatalf("parseTimestamp accepted junk")
	}
}
