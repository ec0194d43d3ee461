package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/pilot-net/esxi-fleet/pkg/types"
)

func sampleReport() *types.AggregateReport {
	rec := func(target, host, version, build, conn string, maint bool) types.HostRecord {
		return types.HostRecord{
			TargetLabel:     target,
			HostID:          host,
			Version:         version,
			Build:           build,
			ConnectionState: conn,
			InMaintenance:   maint,
			Major:           types.ClassifyMajor(version),
			Update:          types.ClassifyUpdate(version),
		}
	}
	return &types.AggregateReport{
		RunID:       "run-1",
		GeneratedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Targets: []types.TargetResult{
			{
				Target: types.Target{Label: "a", Address: "vc1"},
				Status: types.StatusOK,
				Records: []types.HostRecord{
					rec("a", "esx1", "8.0.3", "24022510", "connected", false),
					rec("a", "esx2", "7.0.3", "20036589", "disconnected", true),
				},
			},
			{
				Target: types.Target{Label: "b", Address: "vc2"},
				Status: types.StatusError,
				Error:  "timed out",
			},
		},
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, sampleReport()); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if !reflect.DeepEqual(rows[0], CSVHeader) {
		t.Errorf("header = %v", rows[0])
	}
	want := [][]string{
		{"a", "esx1", "8.x", "8.0.3", "24022510", "u3", "connected", "false"},
		{"a", "esx2", "7.x", "7.0.3", "20036589", "older", "disconnected", "true"},
	}
	if !reflect.DeepEqual(rows[1:], want) {
		t.Errorf("rows = %v", rows[1:])
	}
}

func TestWriteJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "esxi_versions.json")
	report := sampleReport()

	if err := WriteJSONFile(path, report); err != nil {
		t.Fatalf("WriteJSONFile: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var got types.AggregateReport
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.RunID != report.RunID || len(got.Targets) != 2 {
		t.Errorf("round trip = %+v", got)
	}

	// no temp files left behind
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("directory entries = %v", entries)
	}
}

func TestWriteCSVFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "esxi_hosts.csv")
	if err := WriteCSVFile(path, sampleReport()); err != nil {
		t.Fatalf("WriteCSVFile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Errorf("rows = %d", len(rows))
	}
}
