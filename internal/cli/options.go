package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/scenefetch/scenefetch/internal/core"
	"github.com/scenefetch/scenefetch/internal/models"
	"github.com/scenefetch/scenefetch/internal/selector"
	"github.com/scenefetch/scenefetch/internal/validation"
)

func newOptionsCmd() *cobra.Command {
	var (
		idsFile string
		listID  string
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "options [scene-id...]",
		Short: "Show the download options for scenes",
		Long: `List the bundle and band products the service offers for each scene.

The scenes are registered on a temporary working list that is removed
afterwards. Products marked with * pass the configured suffix filters.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if listID == "" {
				listID = fmt.Sprintf("options_%d", time.Now().Unix())
			}
			if err := validation.ValidateListID(listID); err != nil {
				return err
			}
			ids, err := readEntityIDs(args, idsFile)
			if err != nil {
				return err
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			err = withSession(GetContext(), cfg, core.Options{}, func(ctx context.Context, engine *core.Engine) error {
				descriptors, err := engine.ProductOptions(ctx, listID, ids)
				if err != nil {
					return err
				}
				if asJSON {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(descriptors)
				}
				printDescriptors(cmd.OutOrStdout(), descriptors, cfg.SuffixFilters)
				return nil
			})
			if err != nil {
				describeError(cmd.ErrOrStderr(), err)
			}
			return err
		},
	}

	cmd.Flags().StringVar(&idsFile, "ids-file", "", "File with one scene id per line (- for stdin)")
	cmd.Flags().StringVar(&listID, "list", "", "Working list id (default: options_<unix time>)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw descriptors as JSON")
	return cmd
}

func printDescriptors(w io.Writer, descriptors []models.ProductDescriptor, filters []string) {
	for _, d := range descriptors {
		fmt.Fprintf(w, "%s  %s\n", d.EntityID, d.ProductName)
		fmt.Fprintf(w, "  bundle %-12s %8.1f MiB  %s\n", d.ProductID, float64(d.Filesize)/(1024*1024), availability(d))
		for _, band := range d.SecondaryDownloads {
			mark := " "
			if selector.MatchFilter(band.EntityID, filters) != "" {
				mark = "*"
			}
			fmt.Fprintf(w, "  %s %-46s %8.1f MiB  %s\n", mark, band.EntityID, float64(band.Filesize)/(1024*1024), availability(band))
		}
	}
}

func availability(d models.ProductDescriptor) string {
	if d.BulkAvailable {
		return "bulk"
	}
	return "not bulk-available"
}
