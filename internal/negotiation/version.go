package negotiation

import (
	"fmt"

	"golang.org/x/mod/semver"
)

// VersionError is returned when a client is older than the supported minimum.
type VersionError struct {
	Code    string
	Message string
	Minimum string
}

func (e *VersionError) Error() string {
	return e.Message
}

// CheckVersion reports whether client version v satisfies minimum.
// An empty minimum accepts every client. Versions that are not semver
// are rejected as malformed.
func CheckVersion(v, minimum string) error {
	if minimum == "" {
		return nil
	}

	cv := normalizeVersion(v)
	if !semver.IsValid(cv) {
		return &VersionError{
			Code:    ClientHeaderInvalid,
			Message: fmt.Sprintf("client version %q is not a semantic version", v),
			Minimum: minimum,
		}
	}

	if semver.Compare(cv, normalizeVersion(minimum)) < 0 {
		return &VersionError{
			Code:    ClientVersionUnsupported,
			Message: fmt.Sprintf("client version %s is no longer supported, minimum is %s", v, minimum),
			Minimum: minimum,
		}
	}
	return nil
}

// normalizeVersion adds "v" prefix if needed for semver parsing.
func normalizeVersion(v string) string {
	if v == "" {
		return "v0.0.0"
	}
	if v[0] != 'v' {
		return "v" + v
	}
	return v
}
