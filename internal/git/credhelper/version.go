package credhelper

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// minGitVersion is the first git with the credential subcommand.
var minGitVersion = Version{Major: 1, Minor: 7, Patch: 9}

type Version struct {
	Major int
	Minor int
	Patch int
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

func (v Version) less(other Version) bool {
	if v.Major != other.Major {
		return v.Major < other.Major
	}
	if v.Minor != other.Minor {
		return v.Minor < other.Minor
	}
	return v.Patch < other.Patch
}

// ParseVersion reads the output of `git --version`, tolerating vendor
// suffixes such as "(Apple Git-146)" or ".windows.1".
func ParseVersion(out string) (Version, bool) {
	s := strings.TrimSpace(out)
	if idx := strings.Index(s, "git version"); idx >= 0 {
		s = strings.TrimSpace(s[idx+len("git version"):])
	}
	start := strings.IndexAny(s, "0123456789")
	if start < 0 {
		return Version{}, false
	}
	s = s[start:]
	end := 0
	for end < len(s) && (s[end] == '.' || (s[end] >= '0' && s[end] <= '9')) {
		end++
	}
	parts := strings.Split(strings.Trim(s[:end], "."), ".")
	if len(parts) < 2 {
		return Version{}, false
	}
	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return Version{}, false
	}
	minor, err := strconv.Atoi(parts[1])
	if err != nil {
		return Version{}, false
	}
	v := Version{Major: major, Minor: minor}
	if len(parts) >= 3 {
		v.Patch, _ = strconv.Atoi(parts[2])
	}
	return v, true
}

func validateVersionOutput(out string) (Version, error) {
	v, ok := ParseVersion(out)
	if !ok {
		return Version{}, fmt.Errorf("unable to parse git version output: %q", strings.TrimSpace(out))
	}
	if v.less(minGitVersion) {
		return v, fmt.Errorf("git %s is too old for credential helpers; need >= %s", v, minGitVersion)
	}
	return v, nil
}

// GitVersion reports the git binary the helper would run, failing when it
// is missing or predates `git credential`.
func GitVersion(ctx context.Context) (Version, error) {
	out, err := exec.CommandContext(ctx, "git", "--version").CombinedOutput()
	if err != nil {
		if msg := strings.TrimSpace(string(out)); msg != "" {
			return Version{}, fmt.Errorf("git --version: %v: %s", err, msg)
		}
		return Version{}, fmt.Errorf("git --version: %w", err)
	}
	return validateVersionOutput(string(out))
}
