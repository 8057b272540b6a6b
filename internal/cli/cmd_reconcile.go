package cli

import (
	"context"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/docsync/internal/reconcile"
)

// ReconcileCmd returns the reconcile command.
func ReconcileCmd(e *env) *Command {
	flags := flag.NewFlagSet("reconcile", flag.ContinueOnError)
	dryRun := flags.Bool("dry-run", false, "Report changes without applying them")

	return &Command{
		Flags: flags,
		Usage: "reconcile [--dry-run]",
		Short: "Converge the record store with the docs tree",
		Long: `Walk the docs tree and apply the creates, updates and deletes that make
the record store match it. Items that fail are reported and skipped; the
command exits 0 once the pass completes.`,
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			return execReconcile(ctx, o, e, *dryRun)
		},
	}
}

func execReconcile(ctx context.Context, o *IO, e *env, dryRun bool) error {
	a, err := e.open(ctx, o)
	if err != nil {
		return err
	}
	defer a.close()

	r := a.reconciler()

	var report reconcile.Report

	if dryRun {
		report, err = r.Plan(ctx)
	} else {
		report, err = r.Reconcile(ctx)
	}

	if err != nil {
		return err
	}

	report.Print(o.Stdout())

	return nil
}
