package types

import "strings"

// MajorClass is the coarse version bucket for a host.
type MajorClass string

const (
	Major8       MajorClass = "8.x"
	Major7       MajorClass = "7.x"
	Major6       MajorClass = "6.x"
	MajorOther   MajorClass = "other"
	MajorUnknown MajorClass = "unknown"
)

// MajorClasses lists every bucket, in display order.
var MajorClasses = []MajorClass{Major8, Major7, Major6, MajorOther, MajorUnknown}

// UpdateGroup is the fine version bucket, tracking the 8.0 update trains the
// fleet is being moved to.
type UpdateGroup string

const (
	UpdateU3      UpdateGroup = "u3"
	UpdateU2      UpdateGroup = "u2"
	UpdateOlder   UpdateGroup = "older"
	UpdateUnknown UpdateGroup = "unknown"
)

// UpdateGroups lists every bucket, in display order.
var UpdateGroups = []UpdateGroup{UpdateU3, UpdateU2, UpdateOlder, UpdateUnknown}

// ClassifyMajor buckets a version string by its major prefix. Empty or
// whitespace-only versions are unknown; anything that is not 8.x/7.x/6.x
// (e.g. "5.5") is other.
func ClassifyMajor(version string) MajorClass {
	v := strings.TrimSpace(version)
	switch {
	case v == "":
		return MajorUnknown
	case strings.HasPrefix(v, "8."):
		return Major8
	case strings.HasPrefix(v, "7."):
		return Major7
	case strings.HasPrefix(v, "6."):
		return Major6
	default:
		return MajorOther
	}
}

// ClassifyUpdate buckets a version string into an update train.
//
// Matching is deliberately prefix-based, not equality: "8.0.3p01" counts as
// u3. That also means a version with extra dot segments ("8.0.30",
// "8.0.3.1") lands in u3; callers that care should look at the raw version.
func ClassifyUpdate(version string) UpdateGroup {
	v := strings.TrimSpace(version)
	switch {
	case v == "":
		return UpdateUnknown
	case strings.HasPrefix(v, "8.0.3"):
		return UpdateU3
	case strings.HasPrefix(v, "8.0.2"):
		return UpdateU2
	default:
		return UpdateOlder
	}
}
