// Package normalize maps raw inventory payloads into HostRecords.
//
// # Payload shapes
//
// Backends do not agree on envelope shape, and that tolerance is part of the
// contract, not a convenience. Two shapes are accepted and produce identical
// records for the same logical hosts:
//
//   - a flat JSON array of property bags:
//     [{"name":"esx1","version":"8.0.3","build":"22348816",...}, ...]
//
//   - a nested change-set structure (the PropertyCollector shape), where any
//     object carrying a "propSet" key is a host and its propSet entries are
//     the properties:
//     {"returnval":{"objects":[{"obj":"host-12","propSet":[{"name":"name","val":"esx1"},...]}]}}
//
// An enclosing {"value": ...} or {"data": ...} envelope is unwrapped before
// shape detection. Property names are matched case-insensitively and dotted
// property paths ("runtime.connectionState") resolve both as literal keys and
// by traversing nested objects.
package normalize

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/pilot-net/esxi-fleet/pkg/types"
)

// ErrUnsupportedShape is returned when a payload matches no supported shape.
var ErrUnsupportedShape = errors.New("unsupported inventory payload shape")

const propSetKey = "propSet"

var (
	hostIDKeys      = []string{"name", "host", "obj", "id"}
	versionKeys     = []string{"version", "product.version", "config.product.version"}
	buildKeys       = []string{"build", "product.build", "config.product.build"}
	connectionKeys  = []string{"connectionState", "connection_state", "runtime.connectionState"}
	maintenanceKeys = []string{"inMaintenance", "inMaintenanceMode", "in_maintenance", "runtime.inMaintenanceMode"}
)

// Records normalizes a raw payload into HostRecords owned by the given target
// label. Bags without a resolvable host identifier are dropped silently.
func Records(targetLabel string, raw json.RawMessage) ([]types.HostRecord, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedShape, err)
	}

	doc = unwrapEnvelope(doc)

	bags, err := extractBags(doc)
	if err != nil {
		return nil, err
	}

	records := make([]types.HostRecord, 0, len(bags))
	for _, bag := range bags {
		if rec, ok := record(targetLabel, bag); ok {
			records = append(records, rec)
		}
	}
	return records, nil
}

// unwrapEnvelope strips {"value": ...} / {"data": ...} wrappers that some
// REST backends put around the actual payload.
func unwrapEnvelope(doc any) any {
	for {
		obj, ok := doc.(map[string]any)
		if !ok {
			return doc
		}
		inner, ok := lookup(obj, "value")
		if !ok {
			inner, ok = lookup(obj, "data")
		}
		if !ok || inner == nil {
			return doc
		}
		doc = inner
	}
}

func extractBags(doc any) ([]map[string]any, error) {
	// Flat shape: a direct list of property bags.
	if list, ok := doc.([]any); ok {
		var bags []map[string]any
		for _, item := range list {
			if bag, ok := item.(map[string]any); ok {
				bags = append(bags, bag)
			}
		}
		return bags, nil
	}

	// Nested shape: walk for objects carrying a property set.
	obj, ok := doc.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: top-level %T", ErrUnsupportedShape, doc)
	}
	bags := collectPropSets(obj, nil)
	if len(bags) == 0 {
		return nil, fmt.Errorf("%w: no property sets found", ErrUnsupportedShape)
	}
	return bags, nil
}

// collectPropSets recursively gathers every object that carries a propSet
// key, flattening its property entries into a single bag.
func collectPropSets(node any, bags []map[string]any) []map[string]any {
	switch n := node.(type) {
	case map[string]any:
		if props, ok := lookup(n, propSetKey); ok {
			if bag := flattenPropSet(n, props); bag != nil {
				bags = append(bags, bag)
			}
			return bags
		}
		for _, v := range n {
			bags = collectPropSets(v, bags)
		}
	case []any:
		for _, v := range n {
			bags = collectPropSets(v, bags)
		}
	}
	return bags
}

func flattenPropSet(owner map[string]any, props any) map[string]any {
	entries, ok := props.([]any)
	if !ok {
		return nil
	}
	bag := make(map[string]any, len(entries)+1)
	if obj, ok := lookup(owner, "obj"); ok {
		bag["obj"] = obj
	}
	for _, e := range entries {
		entry, ok := e.(map[string]any)
		if !ok {
			continue
		}
		name := asString(entry["name"])
		if name == "" {
			continue
		}
		val, ok := lookup(entry, "val")
		if !ok {
			val, _ = lookup(entry, "value")
		}
		bag[name] = val
	}
	return bag
}

func record(targetLabel string, bag map[string]any) (types.HostRecord, bool) {
	id := stringField(bag, hostIDKeys)
	if id == "" {
		return types.HostRecord{}, false
	}

	version := stringField(bag, versionKeys)
	rec := types.HostRecord{
		TargetLabel:     targetLabel,
		HostID:          id,
		Version:         version,
		Build:           stringField(bag, buildKeys),
		ConnectionState: strings.ToLower(stringField(bag, connectionKeys)),
		InMaintenance:   boolField(bag, maintenanceKeys),
		Major:           types.ClassifyMajor(version),
		Update:          types.ClassifyUpdate(version),
	}
	return rec, true
}

func stringField(bag map[string]any, keys []string) string {
	for _, key := range keys {
		if v, ok := lookupPath(bag, key); ok {
			if s := strings.TrimSpace(asString(v)); s != "" {
				return s
			}
		}
	}
	return ""
}

func boolField(bag map[string]any, keys []string) bool {
	for _, key := range keys {
		v, ok := lookupPath(bag, key)
		if !ok || v == nil {
			continue
		}
		switch b := v.(type) {
		case bool:
			return b
		case string:
			switch strings.ToLower(strings.TrimSpace(b)) {
			case "true", "yes", "on", "1":
				return true
			case "false", "no", "off", "0", "":
				return false
			}
		}
	}
	return false
}

// lookupPath resolves key in bag, trying the key literally first and then as
// a dotted path through nested objects.
func lookupPath(bag map[string]any, key string) (any, bool) {
	if v, ok := lookup(bag, key); ok {
		return v, true
	}
	if !strings.Contains(key, ".") {
		return nil, false
	}
	node := any(bag)
	for _, part := range strings.Split(key, ".") {
		obj, ok := node.(map[string]any)
		if !ok {
			return nil, false
		}
		node, ok = lookup(obj, part)
		if !ok {
			return nil, false
		}
	}
	return node, true
}

// lookup finds a key case-insensitively.
func lookup(obj map[string]any, key string) (any, bool) {
	if v, ok := obj[key]; ok {
		return v, true
	}
	for k, v := range obj {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return nil, false
}

func asString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	default:
		return ""
	}
}
