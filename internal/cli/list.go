package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/scenefetch/scenefetch/internal/core"
	"github.com/scenefetch/scenefetch/internal/validation"
)

func newListCmd() *cobra.Command {
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Manage M2M working lists",
		Long: `Working list commands.

Batches create and remove their own lists. These commands are for inspecting
a list with other M2M tools or for removing a list left behind by a killed run.

Commands:
  add     - Register scene ids on a list
  remove  - Delete a list`,
	}
	listCmd.AddCommand(newListAddCmd())
	listCmd.AddCommand(newListRemoveCmd())
	return listCmd
}

func newListAddCmd() *cobra.Command {
	var idsFile string

	cmd := &cobra.Command{
		Use:   "add <list-id> [scene-id...]",
		Short: "Register scene ids on a working list",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			listID := args[0]
			if err := validation.ValidateListID(listID); err != nil {
				return err
			}
			ids, err := readEntityIDs(args[1:], idsFile)
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			err = withSession(GetContext(), cfg, core.Options{}, func(ctx context.Context, engine *core.Engine) error {
				n, err := engine.AddToList(ctx, listID, ids)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added %d of %d scene(s) to list %s (dataset %s)\n", n, len(ids), listID, cfg.Dataset)
				return nil
			})
			if err != nil {
				describeError(cmd.ErrOrStderr(), err)
			}
			return err
		},
	}
	cmd.Flags().StringVar(&idsFile, "ids-file", "", "File with one scene id per line (- for stdin)")
	return cmd
}

func newListRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "remove <list-id>",
		Aliases: []string{"rm"},
		Short:   "Delete a working list",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			listID := args[0]
			if err := validation.ValidateListID(listID); err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			err = withSession(GetContext(), cfg, core.Options{}, func(ctx context.Context, engine *core.Engine) error {
				if err := engine.RemoveList(ctx, listID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed list %s\n", listID)
				return nil
			})
			if err != nil {
				describeError(cmd.ErrOrStderr(), err)
			}
			return err
		},
	}
}
