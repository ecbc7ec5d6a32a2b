package cmd

import (
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"

	"github.com/vstratful/orchat/internal/update"
)

// version is set at build time with
// -ldflags "-X github.com/vstratful/orchat/cmd.version=<tag>".
var version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the orchat version",
	Run: func(cmd *cobra.Command, args []string) {
		osName, arch := update.GetPlatformInfo()
		fmt.Fprintf(cmd.OutOrStdout(), "orchat %s (%s/%s)\n", version, osName, arch)
	},
}

func init() {
	if update.IsDevVersion(version) {
		if info, ok := debug.ReadBuildInfo(); ok && !update.IsDevVersion(info.Main.Version) {
			version = info.Main.Version
		}
	}
	rootCmd.Version = version
	rootCmd.AddCommand(versionCmd)
}
