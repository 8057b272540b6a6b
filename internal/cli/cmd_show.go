package cli

import (
	"context"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/docsync/pkg/frontmatter"
)

// ShowCmd returns the show command.
func ShowCmd(e *env) *Command {
	flags := flag.NewFlagSet("show", flag.ContinueOnError)
	showFields := flags.Bool("fields", false, "Print parsed frontmatter fields instead of content")

	return &Command{
		Flags: flags,
		Usage: "show <collection> <id> [--fields]",
		Short: "Show a record",
		Long:  "Print a record's raw content, or with --fields its frontmatter as key=value (type) lines.",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			collection, id, err := recordArgs(args)
			if err != nil {
				return err
			}

			a, err := e.open(ctx, o)
			if err != nil {
				return err
			}
			defer a.close()

			rec, err := a.store.Get(ctx, collection, id)
			if err != nil {
				return err
			}

			if !*showFields {
				o.Printf("%s", rec.Content)

				return nil
			}

			fields, _ := frontmatter.ParseString(rec.Content)
			if fields.Len() == 0 {
				o.Println("(no frontmatter)")

				return nil
			}

			for _, f := range fields.Entries() {
				o.Printf("%s=%s (%s)\n", f.Key, f.Value.String(), f.Value.Kind)
			}

			return nil
		},
	}
}
