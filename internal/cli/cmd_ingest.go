package cli

import (
	"context"
	"fmt"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/docsync/internal/ingest"
	"github.com/calvinalkan/docsync/internal/store"
)

// IngestCmd returns the ingest command.
func IngestCmd(e *env) *Command {
	return &Command{
		Flags: flag.NewFlagSet("ingest", flag.ContinueOnError),
		Usage: "ingest <name>",
		Short: "Re-run spec ingestion for a stored API spec",
		Long: `Fetch the specUrl of the named apispecs record, save it to spec_path and
run the configured generator. Unlike the automatic trigger, failures are
reported as errors.`,
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("%w: want <name>", ErrArgsRequired)
			}

			a, err := e.open(ctx, o)
			if err != nil {
				return err
			}
			defer a.close()

			rec, err := a.store.Get(ctx, store.CollectionAPISpecs, args[0])
			if err != nil {
				return err
			}

			spec, err := ingest.DecodeApiSpec(rec.Content)
			if err != nil {
				return err
			}

			if spec.Name == "" {
				spec.Name = rec.ID
			}

			err = a.pipeline.Ingest(ctx, spec)
			if err != nil {
				return fmt.Errorf("ingest %s: %w", spec.Name, err)
			}

			o.Println("ingested " + spec.Name + " -> " + a.pipeline.SpecPath())

			return nil
		},
	}
}
