package targets

import (
	"errors"
	"strings"
	"testing"

	"github.com/pilot-net/esxi-fleet/pkg/types"
)

func TestParse(t *testing.T) {
	input := strings.Join([]string{
		"# production",
		"",
		"nyc1|vc-nyc1.pilot.net",
		"  ord1 | vc-ord1.pilot.net  ",
		"vc-lga2.pilot.net",
		"   ",
		"# trailing comment",
	}, "\n")

	got, err := Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	want := []types.Target{
		{Label: "nyc1", Address: "vc-nyc1.pilot.net"},
		{Label: "ord1", Address: "vc-ord1.pilot.net"},
		{Label: "vc-lga2.pilot.net", Address: "vc-lga2.pilot.net"},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d targets, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("target %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestParse_CRLF(t *testing.T) {
	got, err := Parse(strings.NewReader("a|h1\r\nb|h2\r\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(got) != 2 || got[0].Label != "a" || got[1].Address != "h2" {
		t.Errorf("unexpected targets: %+v", got)
	}
}

func TestParse_Empty(t *testing.T) {
	tests := []string{
		"",
		"# just a comment\n",
		"\n\n  \n",
	}
	for _, input := range tests {
		_, err := Parse(strings.NewReader(input))
		if !errors.Is(err, ErrNoTargets) {
			t.Errorf("Parse(%q) error = %v, want ErrNoTargets", input, err)
		}
	}
}

func TestParse_OrderPreserved(t *testing.T) {
	got, err := Parse(strings.NewReader("z|h1\na|h2\nm|h3\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	labels := []string{got[0].Label, got[1].Label, got[2].Label}
	if labels[0] != "z" || labels[1] != "a" || labels[2] != "m" {
		t.Errorf("input order not preserved: %v", labels)
	}
}
