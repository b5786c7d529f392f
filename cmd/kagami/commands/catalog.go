package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hyperjump/kagami/internal/catalog"
	"github.com/hyperjump/kagami/internal/cli"
)

var (
	catalogClass   string
	catalogLimit   int
	catalogFuzzy   int
	catalogClasses bool
)

// NewCatalogCmd creates the catalog command
func NewCatalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog [words...]",
		Short: "Look up stored images by file name or class",
		Long: `Search the text catalog of stored images. Words match the file name and
class folder; --class restricts results to one class. With no words every
image (optionally of one class) is listed.

Examples:
  kagami catalog tabby
  kagami catalog --class cats
  kagami catalog --fuzzy 1 tabbby
  kagami catalog --classes`,
		RunE: runCatalog,
	}

	cmd.Flags().StringVar(&catalogClass, "class", "", "only images of this class")
	cmd.Flags().IntVar(&catalogLimit, "limit", catalog.DefaultLimit, "maximum results to return")
	cmd.Flags().IntVar(&catalogFuzzy, "fuzzy", 0, "edit distance allowed per word (0 disables)")
	cmd.Flags().BoolVar(&catalogClasses, "classes", false, "list classes with image counts instead")

	return cmd
}

func runCatalog(cmd *cobra.Command, args []string) error {
	if err := validatePositiveInt(catalogLimit, "limit"); err != nil {
		return err
	}
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	components, err := initializeComponents(cfg, logger, componentOptions{catalog: true})
	if err != nil {
		return err
	}
	defer components.Close()

	if err := components.Service.Load(cfg.Storage.StorePath); err != nil {
		return fmt.Errorf("loading store: %w", err)
	}
	store := components.Service.Store()

	if catalogClasses {
		counts := catalog.Classes(store, cfg.Collection.Root)
		if format() == cli.OutputJSON {
			return writeJSON(cmd, counts)
		}
		for _, c := range counts {
			fmt.Fprintf(cmd.OutOrStdout(), "%6d  %s\n", c.Count, c.Class)
		}
		return nil
	}

	count, err := components.Catalog.Count()
	if err != nil {
		return err
	}
	if cfg.Storage.CatalogPath == "" || int(count) != store.Len()-int(store.Masked().GetCardinality()) {
		if err := components.Catalog.Rebuild(cmd.Context(), store); err != nil {
			return fmt.Errorf("building catalog: %w", err)
		}
	}

	entries, err := components.Catalog.Search(cmd.Context(), catalog.Query{
		Text:      strings.Join(args, " "),
		Class:     catalogClass,
		Limit:     catalogLimit,
		Fuzziness: catalogFuzzy,
	})
	if err != nil {
		return err
	}
	return cli.WriteCatalog(cmd.OutOrStdout(), entries, format())
}
