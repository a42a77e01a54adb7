package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/aristath/qpubinder/internal/domain"
	"github.com/aristath/qpubinder/internal/modules/binding"
	"github.com/aristath/qpubinder/internal/modules/circuit"
)

type bindOptions struct {
	circuitPath string
	catalogPath string
	dbPath      string
	weights     domain.Weights
	shots       int
	constraints []string
	top         int
	timeout     time.Duration
}

// bindOutput is printed as JSON
type bindOutput struct {
	Selected   string                      `json:"selected"`
	Ranked     []domain.RankedQPU          `json:"ranked"`
	Rejections map[string]domain.Rejection `json:"rejections"`
	Circuit    *domain.Circuit             `json:"circuit"`
}

func newBindCmd(a *app) *cobra.Command {
	opts := &bindOptions{}

	cmd := &cobra.Command{
		Use:   "bind",
		Short: "Bind an OpenQASM circuit to the best QPU in a catalog",
		Long: `Parse an OpenQASM 2.0/3.0 circuit, filter the catalog and print the ranked result as JSON.

Constraints take the form "[target.]property operator value", where target is
qpu (the default), circuit or computed. A value with commas is a set.

Example:
  qpubind bind --circuit bell.qasm --catalog qpus.yaml --cost 0 --top 3
  qpubind bind --circuit bell.qasm --db qpus.db --shots 4000 \
    --constraint "provider in ibm,ionq" --constraint "computed.fidelity ge 0.9"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runBind(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.circuitPath, "circuit", "", "OpenQASM circuit file")
	cmd.Flags().StringVar(&opts.catalogPath, "catalog", "", "Catalog file (.json, .yaml, .msgpack)")
	cmd.Flags().StringVar(&opts.dbPath, "db", "", "SQLite QPU inventory")
	cmd.Flags().Float64Var(&opts.weights.Fidelity, "fidelity", 1, "Fidelity weight")
	cmd.Flags().Float64Var(&opts.weights.Latency, "latency", 1, "Latency weight")
	cmd.Flags().Float64Var(&opts.weights.Cost, "cost", 1, "Cost weight")
	cmd.Flags().IntVar(&opts.shots, "shots", 0, "Shots to run, checked against QPU max_shots (0 means unknown)")
	cmd.Flags().StringArrayVar(&opts.constraints, "constraint", nil, "Extra hard constraint, repeatable")
	cmd.Flags().IntVar(&opts.top, "top", 0, "Print only the best k ranked QPUs (0 prints all)")
	cmd.Flags().DurationVar(&opts.timeout, "exact-timeout", binding.DefaultOptions().ExactSearchTimeout, "Time bound on exact embedding search")
	_ = cmd.MarkFlagRequired("circuit")
	cmd.MarkFlagsMutuallyExclusive("catalog", "db")
	cmd.MarkFlagsOneRequired("catalog", "db")

	return cmd
}

func (a *app) runBind(cmd *cobra.Command, opts *bindOptions) error {
	if opts.top < 0 {
		return fmt.Errorf("--top must not be negative")
	}

	src, err := os.ReadFile(opts.circuitPath)
	if err != nil {
		return fmt.Errorf("failed to read circuit: %w", err)
	}
	c, err := circuit.NewParser(a.log).Parse(string(src))
	if err != nil {
		return err
	}
	c.Shots = opts.shots

	constraints := make([]domain.Constraint, 0, len(opts.constraints))
	for _, expr := range opts.constraints {
		constraint, err := domain.ParseConstraint(expr)
		if err != nil {
			return err
		}
		constraints = append(constraints, constraint)
	}

	qpus, err := a.loadCatalog(cmd.Context(), opts.catalogPath, opts.dbPath)
	if err != nil {
		return err
	}

	engineOpts := binding.DefaultOptions()
	engineOpts.ExactSearchTimeout = opts.timeout
	result, err := binding.NewEngine(engineOpts, a.log).Bind(cmd.Context(), c, qpus, opts.weights, constraints...)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(bindOutput{
		Selected:   result.Selected,
		Ranked:     result.Top(opts.top),
		Rejections: result.Rejections,
		Circuit:    c,
	})
}
