package types

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Adapted from the suggested regex at
// https://semver.org/#is-there-a-suggested-regular-expression-regex-to-check-a-semver-string
// The patch component is optional because upstream version strings
// sometimes omit it.
var semverPattern = regexp.MustCompile(`^(0|[1-9]\d*)\.(0|[1-9]\d*)(?:\.(0|[1-9]\d*))?` +
	`(?:-((?:0|[1-9]\d*|\d*[a-zA-Z-][0-9a-zA-Z-]*)(?:\.(?:0|[1-9]\d*|\d*[a-zA-Z-][0-9a-zA-Z-]*))*))?` +
	`(?:\+([0-9a-zA-Z-]+(?:\.[0-9a-zA-Z-]+)*))?$`)

type SemVer struct {
	Major      int
	Minor      int
	Patch      int
	Prerelease string
	Build      string
}

var EmptySemVer = SemVer{}

// ParseSemVer returns EmptySemVer for strings that are not semantic
// versions rather than failing; version display degrades gracefully.
func ParseSemVer(version string) SemVer {
	m := semverPattern.FindStringSubmatch(strings.TrimSpace(version))
	if m == nil {
		return EmptySemVer
	}
	major, _ := strconv.Atoi(m[1])
	minor, _ := strconv.Atoi(m[2])
	patch := 0
	if m[3] != "" {
		patch, _ = strconv.Atoi(m[3])
	}
	return SemVer{Major: major, Minor: minor, Patch: patch, Prerelease: m[4], Build: m[5]}
}

func (v SemVer) String() string {
	s := fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.Prerelease != "" {
		s += "-" + v.Prerelease
	}
	if v.Build != "" {
		s += "+" + v.Build
	}
	return s
}

// Compare implements semver precedence: a prerelease sorts before its
// release, numeric identifiers compare numerically and sort before
// alphanumeric ones, and when one prerelease is a prefix of the other
// the shorter sorts first. Build metadata is ignored.
func (v SemVer) Compare(o SemVer) int {
	if c := cmpInt(v.Major, o.Major); c != 0 {
		return c
	}
	if c := cmpInt(v.Minor, o.Minor); c != 0 {
		return c
	}
	if c := cmpInt(v.Patch, o.Patch); c != 0 {
		return c
	}
	switch {
	case v.Prerelease == "" && o.Prerelease == "":
		return 0
	case v.Prerelease == "":
		return 1
	case o.Prerelease == "":
		return -1
	}

	self := strings.Split(v.Prerelease, ".")
	other := strings.Split(o.Prerelease, ".")
	for i := 0; i < len(self) && i < len(other); i++ {
		sn, selfNumeric := parseNumericIdent(self[i])
		on, otherNumeric := parseNumericIdent(other[i])
		switch {
		case selfNumeric && otherNumeric:
			if c := cmpInt(sn, on); c != 0 {
				return c
			}
		case selfNumeric:
			return -1
		case otherNumeric:
			return 1
		default:
			if c := strings.Compare(self[i], other[i]); c != 0 {
				return c
			}
		}
	}
	return cmpInt(len(self), len(other))
}

func (v SemVer) NewerThan(o SemVer) bool {
	return v.Compare(o) > 0
}

func parseNumericIdent(s string) (int, bool) {
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
