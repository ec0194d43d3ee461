package normalize

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/pilot-net/esxi-fleet/pkg/types"
)

func TestRecords_FlatShape(t *testing.T) {
	raw := json.RawMessage(`[
		{"name":"esx1","version":"8.0.3","build":"22348816","connectionState":"connected","inMaintenanceMode":false},
		{"name":"esx2","version":"7.0.3","build":20036589,"connectionState":"Disconnected","inMaintenanceMode":true},
		{"version":"8.0.2","build":"1"},
		{"name":"esx3"}
	]`)

	got, err := Records("nyc1", raw)
	if err != nil {
		t.Fatalf("Records: %v", err)
	}

	want := []types.HostRecord{
		{
			TargetLabel: "nyc1", HostID: "esx1",
			Version: "8.0.3", Build: "22348816", ConnectionState: "connected",
			Major: types.Major8, Update: types.UpdateU3,
		},
		{
			TargetLabel: "nyc1", HostID: "esx2",
			Version: "7.0.3", Build: "20036589", ConnectionState: "disconnected",
			InMaintenance: true,
			Major:         types.Major7, Update: types.UpdateOlder,
		},
		// The bag without a host identifier is dropped; esx3 survives with
		// unknown classification.
		{
			TargetLabel: "nyc1", HostID: "esx3",
			Major: types.MajorUnknown, Update: types.UpdateUnknown,
		},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("records mismatch:\n got: %+v\nwant: %+v", got, want)
	}
}

func TestRecords_NestedShape(t *testing.T) {
	raw := json.RawMessage(`{
		"returnval": {
			"objects": [
				{
					"obj": "host-12",
					"propSet": [
						{"name": "name", "val": "esx1"},
						{"name": "config.product.version", "val": "8.0.3"},
						{"name": "config.product.build", "val": "22348816"},
						{"name": "runtime.connectionState", "val": "connected"},
						{"name": "runtime.inMaintenanceMode", "val": false}
					]
				},
				{
					"obj": "host-13",
					"propSet": [
						{"name": "name", "val": "esx2"},
						{"name": "config.product.version", "val": "6.7.0"}
					]
				}
			]
		}
	}`)

	got, err := Records("nyc1", raw)
	if err != nil {
		t.Fatalf("Records: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d records, want 2: %+v", len(got), got)
	}
	if got[0].HostID != "esx1" || got[0].Version != "8.0.3" || got[0].Build != "22348816" {
		t.Errorf("first record = %+v", got[0])
	}
	if got[0].ConnectionState != "connected" || got[0].InMaintenance {
		t.Errorf("first record runtime fields = %+v", got[0])
	}
	if got[1].Major != types.Major6 || got[1].Update != types.UpdateOlder {
		t.Errorf("second record classification = %+v", got[1])
	}
}

// Both supported shapes must normalize to identical record sequences for the
// same logical hosts.
func TestRecords_ShapeEquivalence(t *testing.T) {
	flat := json.RawMessage(`[
		{"name":"esx1","version":"8.0.3","build":"100","connectionState":"connected","inMaintenanceMode":false},
		{"name":"esx2","version":"8.0.2","build":"050","connectionState":"notResponding","inMaintenanceMode":true}
	]`)
	nested := json.RawMessage(`{
		"objects": [
			{"propSet": [
				{"name":"name","val":"esx1"},
				{"name":"version","val":"8.0.3"},
				{"name":"build","val":"100"},
				{"name":"connectionState","val":"connected"},
				{"name":"inMaintenanceMode","val":false}
			]},
			{"propSet": [
				{"name":"name","val":"esx2"},
				{"name":"version","val":"8.0.2"},
				{"name":"build","val":"050"},
				{"name":"connectionState","val":"notResponding"},
				{"name":"inMaintenanceMode","val":true}
			]}
		]
	}`)

	fromFlat, err := Records("x", flat)
	if err != nil {
		t.Fatalf("flat: %v", err)
	}
	fromNested, err := Records("x", nested)
	if err != nil {
		t.Fatalf("nested: %v", err)
	}
	if !reflect.DeepEqual(fromFlat, fromNested) {
		t.Errorf("shapes diverge:\n flat:   %+v\n nested: %+v", fromFlat, fromNested)
	}
}

func TestRecords_ValueEnvelope(t *testing.T) {
	raw := json.RawMessage(`{"value":[{"host":"host-7","version":"8.0.2"}]}`)

	got, err := Records("x", raw)
	if err != nil {
		t.Fatalf("Records: %v", err)
	}
	if len(got) != 1 || got[0].HostID != "host-7" || got[0].Update != types.UpdateU2 {
		t.Errorf("records = %+v", got)
	}
}

func TestRecords_CaseInsensitiveKeys(t *testing.T) {
	raw := json.RawMessage(`[{"Name":"esx1","Version":"8.0.3","ConnectionState":"Connected"}]`)

	got, err := Records("x", raw)
	if err != nil {
		t.Fatalf("Records: %v", err)
	}
	if len(got) != 1 || got[0].Version != "8.0.3" || got[0].ConnectionState != "connected" {
		t.Errorf("records = %+v", got)
	}
}

func TestRecords_UnsupportedShape(t *testing.T) {
	tests := []string{
		`"just a string"`,
		`42`,
		`{"rows": 3}`,
		`not json at all`,
	}
	for _, raw := range tests {
		_, err := Records("x", json.RawMessage(raw))
		if !errors.Is(err, ErrUnsupportedShape) {
			t.Errorf("Records(%s) error = %v, want ErrUnsupportedShape", raw, err)
		}
	}
}

func TestRecords_EmptyList(t *testing.T) {
	got, err := Records("x", json.RawMessage(`[]`))
	if err != nil {
		t.Fatalf("empty list should normalize cleanly: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("records = %+v", got)
	}
}
