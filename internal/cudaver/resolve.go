// Package cudaver maps a detected NVIDIA driver version onto a compatible
// GPU toolkit channel. Hosts ship whatever driver their image came with;
// the provisioned services must agree on one toolkit that the driver can
// actually run.
package cudaver

import (
	"fmt"
	"strconv"
	"strings"

	"gridup"
)

// Entry pairs a minimum driver version with the toolkit channel it unlocks.
type Entry struct {
	MinDriver Version
	Toolkit   string
}

// Version is a driver version normalized to major.minor precision.
// Comparison is numeric per component, never lexical.
type Version struct {
	Major int
	Minor int
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Less reports whether v orders before o.
func (v Version) Less(o Version) bool {
	if v.Major != o.Major {
		return v.Major < o.Major
	}
	return v.Minor < o.Minor
}

// compatTable is ordered newest threshold first. Resolution picks the
// first entry whose threshold is <= the detected driver.
var compatTable = []Entry{
	{Version{525, 60}, "12.1"},
	{Version{515, 43}, "11.7"},
	{Version{510, 39}, "11.6"},
	{Version{470, 57}, "11.4"},
	{Version{450, 80}, "11.0"},
}

// Resolution is the outcome of matching a driver against the table.
// Degraded is set when the driver predates every known threshold and the
// oldest toolkit was returned as a best effort.
type Resolution struct {
	Driver   Version
	Toolkit  string
	Degraded bool
}

// Parse normalizes a dotted driver version string of arbitrary precision
// to major.minor. Missing or unparsable input is fatal: without a driver
// version there is no safe toolkit choice.
func Parse(s string) (Version, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Version{}, fmt.Errorf("%w: empty driver version", gridup.ErrPrerequisite)
	}

	parts := strings.Split(s, ".")
	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return Version{}, fmt.Errorf("%w: driver version %q is not numeric", gridup.ErrPrerequisite, s)
	}

	minor := 0
	if len(parts) > 1 {
		minor, err = strconv.Atoi(parts[1])
		if err != nil {
			return Version{}, fmt.Errorf("%w: driver version %q is not numeric", gridup.ErrPrerequisite, s)
		}
	}

	return Version{Major: major, Minor: minor}, nil
}

// Resolve picks the toolkit for a detected driver version string. Drivers
// older than every table entry resolve to the oldest toolkit with Degraded
// set; callers log a warning and continue rather than aborting.
func Resolve(driver string) (Resolution, error) {
	v, err := Parse(driver)
	if err != nil {
		return Resolution{}, err
	}

	for _, e := range compatTable {
		if !v.Less(e.MinDriver) {
			return Resolution{Driver: v, Toolkit: e.Toolkit}, nil
		}
	}

	oldest := compatTable[len(compatTable)-1]
	return Resolution{Driver: v, Toolkit: oldest.Toolkit, Degraded: true}, nil
}

// Newest returns the most recent toolkit channel in the table.
func Newest() string {
	return compatTable[0].Toolkit
}

// Oldest returns the fallback toolkit channel for pre-table drivers.
func Oldest() string {
	return compatTable[len(compatTable)-1].Toolkit
}
