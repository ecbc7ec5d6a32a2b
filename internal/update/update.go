// Package update checks GitHub Releases for newer orchat builds and replaces
// the running binary with a verified download.
package update

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/creativeprojects/go-selfupdate"
)

const (
	repoOwner = "vstratful"
	repoName  = "orchat"

	// checksumsFile is the release asset every download is verified against.
	checksumsFile = "checksums.txt"
)

// ErrDevVersion is returned when trying to update a development build.
var ErrDevVersion = errors.New("cannot update development builds")

// Release is a newer release found on GitHub.
type Release struct {
	Version   string
	URL       string
	Date      string
	Notes     string
	AssetName string

	release *selfupdate.Release
}

func newUpdater() (*selfupdate.Updater, error) {
	source, err := selfupdate.NewGitHubSource(selfupdate.GitHubConfig{})
	if err != nil {
		return nil, fmt.Errorf("failed to create GitHub source: %w", err)
	}

	updater, err := selfupdate.NewUpdater(selfupdate.Config{
		Source:    source,
		Validator: &selfupdate.ChecksumValidator{UniqueFilename: checksumsFile},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create updater: %w", err)
	}
	return updater, nil
}

// CheckForUpdate returns the latest release when it is newer than
// currentVersion, or nil when currentVersion is up to date.
func CheckForUpdate(ctx context.Context, currentVersion string) (*Release, error) {
	if IsDevVersion(currentVersion) {
		return nil, ErrDevVersion
	}

	updater, err := newUpdater()
	if err != nil {
		return nil, err
	}

	latest, found, err := updater.DetectLatest(ctx, selfupdate.NewRepositorySlug(repoOwner, repoName))
	if err != nil {
		return nil, fmt.Errorf("failed to detect latest release: %w", err)
	}
	if !found || !latest.GreaterThan(strings.TrimPrefix(currentVersion, "v")) {
		return nil, nil
	}

	rel := &Release{
		Version:   latest.Version(),
		URL:       latest.URL,
		Notes:     strings.TrimSpace(latest.ReleaseNotes),
		AssetName: latest.AssetName,
		release:   latest,
	}
	if !latest.PublishedAt.IsZero() {
		rel.Date = latest.PublishedAt.Format("2006-01-02")
	}
	return rel, nil
}

// Notice returns a one-line announcement of a newer release. It is empty
// when there is none or the check fails.
func Notice(ctx context.Context, currentVersion string) string {
	rel, err := CheckForUpdate(ctx, currentVersion)
	if err != nil || rel == nil {
		return ""
	}
	return FormatNotice(currentVersion, rel)
}

// FormatNotice describes rel relative to currentVersion.
func FormatNotice(currentVersion string, rel *Release) string {
	return fmt.Sprintf("orchat %s is available (you have %s). Run `orchat update` to install it.",
		rel.Version, strings.TrimPrefix(currentVersion, "v"))
}

// ApplyUpdate downloads rel, verifies its checksum and replaces the running
// executable.
func ApplyUpdate(ctx context.Context, rel *Release) error {
	if rel == nil || rel.release == nil {
		return errors.New("no release to apply")
	}

	updater, err := newUpdater()
	if err != nil {
		return err
	}

	exe, err := selfupdate.ExecutablePath()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	if err := updater.UpdateTo(ctx, rel.release, exe); err != nil {
		return fmt.Errorf("failed to apply update: %w", err)
	}
	return nil
}

// IsDevVersion reports whether v identifies a local build rather than a
// tagged release.
func IsDevVersion(v string) bool {
	v = strings.TrimSpace(v)
	return v == "" || v == "dev" || v == "(devel)" || strings.HasSuffix(v, "-dirty")
}

// GetPlatformInfo returns the current OS and architecture.
func GetPlatformInfo() (os, arch string) {
	return runtime.GOOS, runtime.GOARCH
}
