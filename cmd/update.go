package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/smazurov/loopcast/internal/updater"
	"github.com/smazurov/loopcast/internal/version"
)

// CreateUpdateCmd creates the update command.
func CreateUpdateCmd() *cobra.Command {
	var checkOnly bool
	var rollback bool
	var prerelease bool
	var repository string

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update loopcast to the latest release",
		Long: `Downloads the latest GitHub release and replaces the running binary, keeping ` +
			`a backup of the current version. Restart the service afterwards.`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()

			up, err := updater.New(updater.Options{
				Repository: repository,
				Prerelease: prerelease,
			})
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}

			if rollback {
				restored, rbErr := up.Rollback()
				if rbErr != nil {
					fmt.Fprintf(os.Stderr, "Error: %v\n", rbErr)
					os.Exit(1)
				}
				fmt.Fprintf(out, "Rolled back to %s\n", restored)
				return
			}

			if checkOnly {
				info, checkErr := up.Check(cmd.Context())
				if checkErr != nil {
					fmt.Fprintf(os.Stderr, "Error: %v\n", checkErr)
					os.Exit(1)
				}
				fmt.Fprintf(out, "Current: %s\nLatest:  %s\n", info.CurrentVersion, info.LatestVersion)
				if info.UpdateAvailable {
					fmt.Fprintf(out, "An update is available: %s\n", info.ReleaseURL)
				} else {
					fmt.Fprintln(out, "Up to date")
				}
				return
			}

			fmt.Fprintf(out, "Running %s\n", version.String())
			info, err := up.Apply(cmd.Context())
			var upErr *updater.Error
			switch {
			case errors.As(err, &upErr) && upErr.Code == updater.ErrCodeNoUpdate:
				fmt.Fprintln(out, "Already up to date")
			case err != nil:
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			default:
				fmt.Fprintf(out, "Updated %s -> %s, restart loopcast to use it\n", info.CurrentVersion, info.LatestVersion)
			}
		},
	}

	cmd.Flags().BoolVar(&checkOnly, "check", false, "Only report whether an update is available")
	cmd.Flags().BoolVar(&rollback, "rollback", false, "Restore the version replaced by the last update")
	cmd.Flags().BoolVar(&prerelease, "prerelease", false, "Consider prereleases")
	cmd.Flags().StringVar(&repository, "repository", updater.DefaultRepository, "GitHub repository to update from")
	cmd.MarkFlagsMutuallyExclusive("check", "rollback")

	return cmd
}

// CreateVersionCmd creates the version command.
func CreateVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}
