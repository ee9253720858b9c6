package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tturner/cipstack/internal/cip/catalog"
)

func newCatalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Named request catalog operations",
		Long: `Browse and validate the catalog of named requests used by request build
and selftest. The built-in catalog is used unless --catalog names a YAML
file.`,
	}

	cmd.AddCommand(newCatalogListCmd())
	cmd.AddCommand(newCatalogShowCmd())
	cmd.AddCommand(newCatalogValidateCmd())
	cmd.AddCommand(newCatalogExportCmd())

	return cmd
}

// --- catalog list ---

type catalogListFlags struct {
	catalogPath string
	category    string
	search      string
}

func newCatalogListCmd() *cobra.Command {
	flags := &catalogListFlags{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List catalog entries",
		Example: `  cipstack catalog list
  cipstack catalog list --category identity
  cipstack catalog list --search modbus`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCatalogList(cmd, flags)
		},
	}

	cmd.Flags().StringVar(&flags.catalogPath, "catalog", "", "Catalog YAML file (default: built-in catalog)")
	cmd.Flags().StringVar(&flags.category, "category", "", "Filter by category (identity, data_access, connection, tunnel)")
	cmd.Flags().StringVar(&flags.search, "search", "", "Search query (matches key, name, description, label)")

	return cmd
}

func runCatalogList(cmd *cobra.Command, flags *catalogListFlags) error {
	cat, err := catalog.Open(flags.catalogPath)
	if err != nil {
		return err
	}

	entries := cat.Search(flags.search)
	if flags.category != "" {
		var filtered []*catalog.Entry
		for _, e := range entries {
			if string(e.Category) == flags.category {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}

	out := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintln(out, "No entries found")
		return nil
	}

	fmt.Fprintf(out, "%-40s %-6s %-32s %s\n", "KEY", "SVC", "PATH", "NAME")
	fmt.Fprintln(out, strings.Repeat("-", 100))
	for _, e := range entries {
		path := "-"
		if p, err := e.Path.EPath(); err == nil {
			path = p.String()
		}
		fmt.Fprintf(out, "%-40s 0x%02X   %-32s %s\n", e.Key, uint8(e.Service), path, e.Name)
	}
	fmt.Fprintf(out, "\n%d entries\n", len(entries))
	return nil
}

// --- catalog show ---

type catalogShowFlags struct {
	catalogPath string
}

func newCatalogShowCmd() *cobra.Command {
	flags := &catalogShowFlags{}

	cmd := &cobra.Command{
		Use:     "show <key>",
		Short:   "Show details of a catalog entry",
		Example: `  cipstack catalog show identity.vendor_id`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			if len(args) == 0 {
				return missingArgError(cmd, "<key>")
			}
			return runCatalogShow(cmd, flags, args[0])
		},
	}

	cmd.Flags().StringVar(&flags.catalogPath, "catalog", "", "Catalog YAML file (default: built-in catalog)")

	return cmd
}

func runCatalogShow(cmd *cobra.Command, flags *catalogShowFlags, key string) error {
	cat, err := catalog.Open(flags.catalogPath)
	if err != nil {
		return err
	}
	e, ok := cat.Lookup(key)
	if !ok {
		return fmt.Errorf("catalog key not found: %s", key)
	}
	req, err := e.Request()
	if err != nil {
		return fmt.Errorf("entry %s: %w", key, err)
	}
	data, err := req.Encode()
	if err != nil {
		return fmt.Errorf("entry %s: %w", key, err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Key:          %s\n", e.Key)
	fmt.Fprintf(out, "Name:         %s\n", e.Name)
	if e.Description != "" {
		fmt.Fprintf(out, "Description:  %s\n", e.Description)
	}
	fmt.Fprintf(out, "Category:     %s\n", e.Category)
	fmt.Fprintf(out, "Service:      %s (0x%02X)\n", e.Label(), uint8(e.Service))
	fmt.Fprintf(out, "Path:         %s\n", req.Path)
	if len(e.Data) > 0 {
		fmt.Fprintf(out, "Data:         % X\n", e.Data)
	}
	if e.Response != "" {
		fmt.Fprintf(out, "Response:     %s\n", e.Response)
	}
	fmt.Fprintf(out, "Request:      % X\n", data)
	return nil
}

// --- catalog validate ---

type catalogValidateFlags struct {
	catalogPath string
}

func newCatalogValidateCmd() *cobra.Command {
	flags := &catalogValidateFlags{}

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate catalog entries against the service registry",
		Long: `Check that every entry encodes and that its request data satisfies the
service registry. Unknown services and classes are reported as warnings.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCatalogValidate(cmd, flags)
		},
	}

	cmd.Flags().StringVar(&flags.catalogPath, "catalog", "", "Catalog YAML file (default: built-in catalog)")

	return cmd
}

func runCatalogValidate(cmd *cobra.Command, flags *catalogValidateFlags) error {
	cat, err := catalog.Open(flags.catalogPath)
	if err != nil {
		return err
	}
	result := catalog.ValidateAgainstRegistry(cat, nil)

	out := cmd.OutOrStdout()
	for _, w := range result.Warnings {
		fmt.Fprintf(out, "warning: %s\n", w)
	}
	for _, e := range result.Errors {
		fmt.Fprintf(out, "error: %s\n", e)
	}
	fmt.Fprintf(out, "%s: %d entries, %d errors, %d warnings\n",
		cat.Name(), len(cat.ListAll()), len(result.Errors), len(result.Warnings))

	if !result.IsValid() {
		return fmt.Errorf("catalog %s has %d invalid entries", cat.Name(), len(result.Errors))
	}
	return nil
}

// --- catalog export ---

type catalogExportFlags struct {
	output string
}

func newCatalogExportCmd() *cobra.Command {
	flags := &catalogExportFlags{}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the built-in catalog to a YAML file",
		Long:  `Write the built-in catalog as YAML, as a starting point for a custom catalog.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.output == "" {
				return missingFlagError(cmd, "--output")
			}
			if err := catalog.Save(flags.output, catalog.Core().File()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", flags.output)
			return nil
		},
	}

	cmd.Flags().StringVar(&flags.output, "output", "", "Output YAML file (required)")

	return cmd
}
