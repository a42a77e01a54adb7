package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/aristath/qpubinder/internal/database"
	"github.com/aristath/qpubinder/internal/domain"
	"github.com/aristath/qpubinder/internal/modules/catalog"
)

func newCatalogCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage the SQLite QPU inventory",
	}

	cmd.AddCommand(newCatalogImportCmd(a))
	cmd.AddCommand(newCatalogExportCmd(a))
	cmd.AddCommand(newCatalogListCmd(a))
	cmd.AddCommand(newCatalogAvailabilityCmd(a))
	return cmd
}

func newCatalogImportCmd(a *app) *cobra.Command {
	var from, dbPath string
	var merge bool

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import descriptors from a catalog file into the inventory",
		Long: `Import descriptors from a catalog file. By default the inventory is replaced;
--merge upserts the file's descriptors and keeps the others.

Example:
  qpubind catalog import --from qpus.yaml --db data/catalog.db`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := catalog.NewFileSource(from)
			if err != nil {
				return err
			}
			qpus, err := src.Load(cmd.Context())
			if err != nil {
				return err
			}
			if err := catalog.CheckIdentities(qpus); err != nil {
				return err
			}
			for _, q := range qpus {
				if err := q.Validate(); err != nil {
					a.log.Warn().Err(err).Str("qpu", q.ID).Msg("Importing invalid descriptor")
				}
			}

			return a.withRepository(dbPath, func(repo *catalog.Repository) error {
				if merge {
					for _, q := range qpus {
						if err := repo.Upsert(cmd.Context(), q); err != nil {
							return err
						}
					}
				} else if err := repo.ReplaceAll(cmd.Context(), qpus); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %d QPUs into %s\n", len(qpus), dbPath)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "Catalog file (.json, .yaml, .msgpack)")
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite QPU inventory")
	cmd.Flags().BoolVar(&merge, "merge", false, "Upsert instead of replacing the inventory")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("db")
	return cmd
}

func newCatalogExportCmd(a *app) *cobra.Command {
	var to, dbPath string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the inventory to a catalog file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := catalog.FormatFromPath(to)
			if err != nil {
				return err
			}
			return a.withRepository(dbPath, func(repo *catalog.Repository) error {
				qpus, err := repo.List(cmd.Context())
				if err != nil {
					return err
				}
				data, err := catalog.Encode(format, qpus)
				if err != nil {
					return err
				}
				if err := os.WriteFile(to, data, 0644); err != nil {
					return fmt.Errorf("failed to write %s: %w", to, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Exported %d QPUs to %s\n", len(qpus), to)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&to, "to", "", "Catalog file (.json, .yaml, .msgpack)")
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite QPU inventory")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("db")
	return cmd
}

func newCatalogListCmd(a *app) *cobra.Command {
	var dbPath, output string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the QPUs in the inventory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRepository(dbPath, func(repo *catalog.Repository) error {
				qpus, err := repo.List(cmd.Context())
				if err != nil {
					return err
				}
				return printQPUs(cmd, qpus, output)
			})
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite QPU inventory")
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format (table, json, yaml)")
	_ = cmd.MarkFlagRequired("db")
	return cmd
}

func newCatalogAvailabilityCmd(a *app) *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "set-available [id] [true|false]",
		Short: "Mark a QPU available or unavailable",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var available bool
			switch strings.ToLower(args[1]) {
			case "true", "yes", "on":
				available = true
			case "false", "no", "off":
			default:
				return fmt.Errorf("availability must be true or false, got %q", args[1])
			}
			return a.withRepository(dbPath, func(repo *catalog.Repository) error {
				if err := repo.SetAvailability(cmd.Context(), args[0], available); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s available=%t\n", args[0], available)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite QPU inventory")
	_ = cmd.MarkFlagRequired("db")
	return cmd
}

func printQPUs(cmd *cobra.Command, qpus []*domain.QPU, output string) error {
	out := cmd.OutOrStdout()
	switch output {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(catalog.Document{QPUs: qpus})
	case "yaml":
		return yaml.NewEncoder(out).Encode(catalog.Document{QPUs: qpus})
	case "table":
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tPROVIDER\tQUBITS\tCOUPLERS\tWORKLOAD\tCOST/SHOT\tAVAILABLE")
		for _, q := range qpus {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%g\t%g\t%t\n",
				q.ID, q.Provider, q.QubitCount, len(q.Couplers), q.Workload, q.CostPerShot, q.Available)
		}
		return tw.Flush()
	default:
		return fmt.Errorf("unknown output format %q", output)
	}
}

// loadCatalog reads descriptors from a catalog file or the inventory
func (a *app) loadCatalog(ctx context.Context, catalogPath, dbPath string) ([]*domain.QPU, error) {
	if catalogPath != "" {
		src, err := catalog.NewFileSource(catalogPath)
		if err != nil {
			return nil, err
		}
		return src.Load(ctx)
	}

	var qpus []*domain.QPU
	err := a.withRepository(dbPath, func(repo *catalog.Repository) error {
		var err error
		qpus, err = repo.List(ctx)
		return err
	})
	return qpus, err
}

// withRepository opens and migrates the inventory for the duration of fn
func (a *app) withRepository(dbPath string, fn func(*catalog.Repository) error) error {
	db, err := database.New(database.Config{
		Path:    dbPath,
		Profile: database.ProfileStandard,
		Name:    "catalog",
	})
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return err
	}
	return fn(catalog.NewRepository(db.Conn(), a.log))
}
