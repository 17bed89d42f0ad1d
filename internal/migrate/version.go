// ABOUTME: Three-part schema version type with parsing and ordering
// ABOUTME: Used by the migration manager to order and gate migrations

package migrate

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is a three-part dotted schema version.
type Version struct {
	Major int
	Minor int
	Patch int
}

// ParseVersion parses a "major.minor.patch" string.
func ParseVersion(s string) (Version, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) != 3 {
		return Version{}, fmt.Errorf("invalid version %q: want three dotted parts", s)
	}

	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return Version{}, fmt.Errorf("invalid version %q: component %q", s, p)
		}
		nums[i] = n
	}

	return Version{Major: nums[0], Minor: nums[1], Patch: nums[2]}, nil
}

// MustParseVersion parses a version string and panics on failure.
// Intended for compile-time constant version literals.
func MustParseVersion(s string) Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Compare returns -1, 0 or 1 if v is older than, equal to or newer than o.
func (v Version) Compare(o Version) int {
	for _, d := range []int{v.Major - o.Major, v.Minor - o.Minor, v.Patch - o.Patch} {
		if d < 0 {
			return -1
		}
		if d > 0 {
			return 1
		}
	}
	return 0
}

// Previous derives the immediately preceding version by decrementing the
// lowest non-zero component. It reports false for the zero version.
//
// This is the heuristic behind the virtual baseline record: it is ambiguous
// across non-linear version histories (after a major bump, 2.0.0 yields
// 1.0.0, not the last 1.x release). A safer design would record an explicit
// baseline at install time; existing deployments predate that option.
func (v Version) Previous() (Version, bool) {
	switch {
	case v.Patch > 0:
		return Version{v.Major, v.Minor, v.Patch - 1}, true
	case v.Minor > 0:
		return Version{v.Major, v.Minor - 1, 0}, true
	case v.Major > 0:
		return Version{v.Major - 1, 0, 0}, true
	}
	return Version{}, false
}
