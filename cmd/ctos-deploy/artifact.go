package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/atharvakapadnis/ctOS/pkg/runtime"
	"github.com/atharvakapadnis/ctOS/pkg/types"
)

var artifactCmd = &cobra.Command{
	Use:   "artifact",
	Short: "Manage the artifact registry",
}

var artifactAddCmd = &cobra.Command{
	Use:   "add <tag>",
	Short: "Register a deployable artifact",
	Long: `Register an image tag as a deployable artifact. With --pull the image
is fetched through the container runtime first, so a later deploy does
not stall on a slow registry during the stop/start window.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tag := args[0]
		sourceRef, _ := cmd.Flags().GetString("source-ref")
		pull, _ := cmd.Flags().GetBool("pull")

		env, err := setupWithoutRuntime()
		if err != nil {
			return err
		}
		defer env.close()

		if pull {
			rt, err := runtime.NewContainerdAdapter(env.cfg.Runtime.Socket, env.cfg.Runtime.Namespace)
			if err != nil {
				return err
			}
			defer rt.Close()

			fmt.Printf("Pulling %s...\n", tag)
			if err := rt.Pull(cmd.Context(), tag); err != nil {
				return err
			}
		}

		artifact := &types.Artifact{
			Tag:       tag,
			SourceRef: sourceRef,
		}
		if err := env.reg.Add(artifact); err != nil {
			return err
		}

		fmt.Printf("✓ Registered artifact %s\n", tag)
		return nil
	},
}

var artifactListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered artifacts, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := setupWithoutRuntime()
		if err != nil {
			return err
		}
		defer env.close()

		artifacts, err := env.reg.List()
		if err != nil {
			return err
		}
		if len(artifacts) == 0 {
			fmt.Println("No artifacts registered.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TAG\tCREATED\tSOURCE")
		for _, a := range artifacts {
			fmt.Fprintf(w, "%s\t%s\t%s\n", a.Tag, a.CreatedAt.Format(time.RFC3339), a.SourceRef)
		}
		return w.Flush()
	},
}

func init() {
	artifactAddCmd.Flags().String("source-ref", "", "commit SHA or upstream version label")
	artifactAddCmd.Flags().Bool("pull", false, "pull the image before registering")

	artifactCmd.AddCommand(artifactAddCmd)
	artifactCmd.AddCommand(artifactListCmd)
}
