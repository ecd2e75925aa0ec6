// Package cli provides launcher profile commands.
package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Amchestnut/KotlinRunnerX/internal/profiles"
)

func init() {
	rootCmd.AddCommand(profilesCmd)
	profilesCmd.AddCommand(profilesShowCmd)
}

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List launcher profiles",
	Long: `List the launcher profiles discovered in the profile directory.

A profile is a TOML file selecting a compiler executable, install root,
extra arguments, and environment for 'run --profile <name>'.`,
	Example: `  kotlinrunnerx profiles
  kotlinrunnerx profiles show jdk17`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := GetConfig().ProfileDir()
		available, err := profiles.LoadProfilesFromDir(dir)
		if err != nil {
			return err
		}

		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(os.Stdout, available)
		}

		if len(available) == 0 {
			fmt.Fprintf(os.Stdout, "No profiles found in %s\n", dir)
			return nil
		}

		rows := make([][]string, 0, len(available))
		for _, p := range available {
			rows = append(rows, []string{
				p.Name,
				orDash(p.Executable),
				orDash(strings.Join(p.ExtraArgs, " ")),
				orDash(p.Description),
				p.Source,
			})
		}

		return writeTable(os.Stdout, []string{"NAME", "EXECUTABLE", "ARGS", "DESCRIPTION", "SOURCE"}, rows)
	},
}

var profilesShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show one launcher profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		available, err := profiles.LoadProfilesFromDir(GetConfig().ProfileDir())
		if err != nil {
			return err
		}
		profile, err := profiles.Resolve(available, args[0])
		if err != nil {
			return err
		}

		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(os.Stdout, profile)
		}

		fmt.Printf("Name:         %s\n", profile.Name)
		fmt.Printf("Description:  %s\n", orDash(profile.Description))
		fmt.Printf("Executable:   %s\n", orDash(profile.Executable))
		fmt.Printf("Install root: %s\n", orDash(profile.InstallRoot))
		fmt.Printf("Extra args:   %s\n", orDash(strings.Join(profile.ExtraArgs, " ")))
		fmt.Printf("Source:       %s\n", profile.Source)
		if env := profile.EnvList(); len(env) > 0 {
			fmt.Println("Environment:")
			for _, entry := range env {
				fmt.Printf("  %s\n", entry)
			}
		}
		return nil
	},
}
