// Package targets parses the newline-delimited target list.
//
// # Format
//
// One entry per line, either "label|address" or a bare address (the label
// defaults to the address). Blank lines and lines starting with # are
// ignored. CRLF line endings are tolerated.
//
//	# production vCenters
//	nyc1|vc-nyc1.pilot.net
//	vc-ord1.pilot.net
package targets

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pilot-net/esxi-fleet/pkg/types"
)

// ErrNoTargets is returned when the list parses to nothing. An empty list is
// fatal to the run; there is no point scheduling zero targets.
var ErrNoTargets = errors.New("target list is empty")

// Parse reads a target list, preserving input order. Duplicate labels are not
// rejected here, but aggregation keys by label, so callers should keep labels
// unique upstream.
func Parse(r io.Reader) ([]types.Target, error) {
	var out []types.Target

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(strings.TrimSuffix(scanner.Text(), "\r"))
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		label, address, found := strings.Cut(line, "|")
		if !found {
			label, address = line, line
		}
		label = strings.TrimSpace(label)
		address = strings.TrimSpace(address)
		if address == "" {
			continue
		}
		if label == "" {
			label = address
		}

		out = append(out, types.Target{Label: label, Address: address})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading target list: %w", err)
	}

	if len(out) == 0 {
		return nil, ErrNoTargets
	}
	return out, nil
}

// Load parses a target list file.
func Load(path string) ([]types.Target, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening target list: %w", err)
	}
	defer f.Close()

	list, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return list, nil
}
