// Package main is the qpubind command line tool: it binds a circuit file
// against a catalog offline and manages the SQLite QPU inventory.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/aristath/qpubinder/pkg/logger"
)

// app carries state shared by all subcommands
type app struct {
	out      io.Writer
	logLevel string
	log      zerolog.Logger
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	a := &app{out: out}

	cmd := &cobra.Command{
		Use:   "qpubind",
		Short: "Bind quantum circuits to QPUs",
		Long: `qpubind selects the quantum processing unit best suited to run a circuit.

It filters a catalog of QPU descriptors by availability, size, native gates
and connectivity, then ranks the feasible devices by fidelity, latency and
cost.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			a.log = logger.New(logger.Config{Level: a.logLevel, Pretty: true, Output: errOut})
		},
		SilenceUsage: true,
	}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "error", "Log level (debug, info, warn, error)")

	cmd.AddCommand(newBindCmd(a))
	cmd.AddCommand(newCatalogCmd(a))
	return cmd
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
