package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/vstratful/orchat/internal/update"
)

const releasesURL = "https://github.com/vstratful/orchat/releases"

var (
	checkOnly     bool
	forceUpdate   bool
	updateTimeout time.Duration
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Update orchat to the latest version",
	Long: `Check for and install updates from GitHub Releases. Downloads are verified
against the release checksums before the binary is replaced.

Examples:
  orchat update               # Check and install update interactively
  orchat update --check       # Only check for updates
  orchat update --force       # Update without confirmation
  orchat update --timeout 60s # Set network timeout`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE:         runUpdate,
}

func init() {
	rootCmd.AddCommand(updateCmd)
	updateCmd.Flags().BoolVarP(&checkOnly, "check", "c", false, "Only check for updates, don't install")
	updateCmd.Flags().BoolVarP(&forceUpdate, "force", "f", false, "Update without confirmation")
	updateCmd.Flags().DurationVar(&updateTimeout, "timeout", 30*time.Second, "Timeout for network operations")
}

func runUpdate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	ctx, cancel := context.WithTimeout(cmd.Context(), updateTimeout)
	defer cancel()

	fmt.Fprintln(out, "Checking for updates...")
	fmt.Fprintf(out, "Current version: %s\n", version)

	release, err := update.CheckForUpdate(ctx, version)
	if errors.Is(err, update.ErrDevVersion) {
		fmt.Fprintln(out, "\nYou are running a development build.")
		fmt.Fprintln(out, "Auto-update is only available for released versions.")
		fmt.Fprintf(out, "Install a release from: %s\n", releasesURL)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to check for updates: %w", err)
	}
	if release == nil {
		fmt.Fprintln(out, "\nYou are running the latest version.")
		return nil
	}

	printRelease(out, release)

	if checkOnly {
		fmt.Fprintln(out, "\nRun 'orchat update' to install the update.")
		return nil
	}
	if !forceUpdate && !confirm(cmd.InOrStdin(), out, "\nDo you want to update? [y/N]: ") {
		fmt.Fprintln(out, "Update cancelled.")
		return nil
	}

	fmt.Fprintf(out, "\nDownloading %s...\n", release.AssetName)

	// The download gets its own, longer budget.
	cancel()
	downloadCtx, downloadCancel := context.WithTimeout(cmd.Context(), updateTimeout*2)
	defer downloadCancel()

	if err := update.ApplyUpdate(downloadCtx, release); err != nil {
		if hint := updateErrorHint(err); hint != "" {
			fmt.Fprintln(out, hint)
		}
		return err
	}

	fmt.Fprintf(out, "\nSuccessfully updated to v%s!\n", release.Version)
	return nil
}

func printRelease(w io.Writer, release *update.Release) {
	fmt.Fprintf(w, "Latest version:  %s", release.Version)
	if release.Date != "" {
		fmt.Fprintf(w, " (%s)", release.Date)
	}
	fmt.Fprintln(w)

	if release.Notes != "" {
		fmt.Fprintln(w, "\nRelease notes:")
		for _, line := range strings.Split(release.Notes, "\n") {
			fmt.Fprintf(w, "  %s\n", line)
		}
	}
}

// confirm asks a yes/no question. Anything but y or yes is a no.
func confirm(in io.Reader, out io.Writer, question string) bool {
	fmt.Fprint(out, question)
	response, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && response == "" {
		return false
	}
	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}

// updateErrorHint explains the failures a user can act on. go-selfupdate
// does not export typed errors for these, so the message is matched.
func updateErrorHint(err error) string {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "permission denied") || strings.Contains(msg, "access is denied"):
		if osName, _ := update.GetPlatformInfo(); osName == "windows" {
			return "\nPermission denied. Try running as Administrator."
		}
		return "\nPermission denied. Try running with elevated privileges:\n  sudo orchat update"
	case strings.Contains(msg, "checksum"):
		return "\nSecurity warning: Checksum verification failed!\n" +
			"The downloaded file may be corrupted or tampered with.\n" +
			"Please download manually from: " + releasesURL
	}
	return ""
}
