// Package export writes collection reports to their on-disk artifact
// formats: the aggregate JSON report and a flat per-host CSV.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pilot-net/esxi-fleet/pkg/types"
)

// CSVHeader is the column layout of the per-host export, one row per
// ESXi host across every target.
var CSVHeader = []string{
	"target",
	"host",
	"major",
	"version",
	"build",
	"update_group",
	"connection_state",
	"maintenance",
}

// WriteJSON writes the aggregate report as indented JSON.
func WriteJSON(w io.Writer, report *types.AggregateReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}

// WriteCSV writes one row per host record in the report, in the report's
// target order. Failed targets contribute no rows.
func WriteCSV(w io.Writer, report *types.AggregateReport) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, res := range report.Targets {
		for _, rec := range res.Records {
			row := []string{
				rec.TargetLabel,
				rec.HostID,
				string(rec.Major),
				rec.Version,
				rec.Build,
				string(rec.Update),
				rec.ConnectionState,
				strconv.FormatBool(rec.InMaintenance),
			}
			if err := cw.Write(row); err != nil {
				return fmt.Errorf("write csv row: %w", err)
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteJSONFile writes the report atomically: to a temp file in the target
// directory, then renamed into place.
func WriteJSONFile(path string, report *types.AggregateReport) error {
	return writeFile(path, func(w io.Writer) error { return WriteJSON(w, report) })
}

// WriteCSVFile writes the per-host CSV atomically, like WriteJSONFile.
func WriteCSVFile(path string, report *types.AggregateReport) error {
	return writeFile(path, func(w io.Writer) error { return WriteCSV(w, report) })
}

func writeFile(path string, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".export-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
