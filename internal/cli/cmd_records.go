package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/docsync/internal/ingest"
	"github.com/calvinalkan/docsync/internal/store"
)

// CreateCmd returns the create command.
func CreateCmd(e *env) *Command {
	return mutateCmd(e, "create", "Create a record", store.EventCreated)
}

// UpdateCmd returns the update command.
func UpdateCmd(e *env) *Command {
	return mutateCmd(e, "update", "Replace a record's content", store.EventUpdated)
}

func mutateCmd(e *env, name, short string, kind store.EventKind) *Command {
	flags := flag.NewFlagSet(name, flag.ContinueOnError)
	file := flags.StringP("file", "f", "", "Read content from `path` instead of stdin")

	return &Command{
		Flags: flags,
		Usage: name + " <collection> <id> [-f path]",
		Short: short,
		Long: short + `. Content is read from --file or stdin. Mirrored collections
(docs, meta) are written to the docs tree immediately; apispecs records with
a specUrl trigger spec ingestion.`,
		Exec: func(ctx context.Context, o *IO, args []string) error {
			collection, id, err := recordArgs(args)
			if err != nil {
				return err
			}

			content, err := readContent(o, e.cfg.WorkDir, *file)
			if err != nil {
				return err
			}

			return execMutate(ctx, o, e, kind, collection, id, content)
		},
	}
}

func execMutate(ctx context.Context, o *IO, e *env, kind store.EventKind, collection, id, content string) error {
	if collection == store.CollectionAPISpecs {
		spec, err := ingest.DecodeApiSpec(content)
		if err != nil {
			return err
		}

		if spec.Name != "" && spec.Name != id {
			return fmt.Errorf("spec name %q does not match id %q", spec.Name, id)
		}
	}

	a, err := e.open(ctx, o)
	if err != nil {
		return err
	}
	defer a.close()

	before := a.mirror.Failures()

	if kind == store.EventCreated {
		_, err = a.store.Create(ctx, collection, id, content)
	} else {
		_, err = a.store.Update(ctx, collection, id, content)
	}

	if err != nil {
		return err
	}

	if a.mirror.Failures() > before {
		o.Warn("file for "+collection+"/"+id+" was not written",
			"check the log above, then re-run the update once the tree is writable")
	}

	line := kind.String() + " " + collection + "/" + id
	if rel := a.relPath(collection, id); rel != "" {
		line += " -> " + rel
	}

	o.Println(line)

	return nil
}

// DeleteCmd returns the delete command.
func DeleteCmd(e *env) *Command {
	return &Command{
		Flags:   flag.NewFlagSet("delete", flag.ContinueOnError),
		Usage:   "delete <collection> <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a record",
		Long:    "Delete a record. Its mirrored file is removed along with any directories left empty.",
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

			before := a.mirror.Failures()

			err = a.store.Delete(ctx, collection, id)
			if err != nil {
				return err
			}

			if a.mirror.Failures() > before {
				o.Warn("file for "+collection+"/"+id+" was not removed", "delete it by hand or run reconcile after fixing permissions")
			}

			o.Println("deleted " + collection + "/" + id)

			return nil
		},
	}
}

func recordArgs(args []string) (string, string, error) {
	if len(args) < 2 {
		return "", "", fmt.Errorf("%w: want <collection> <id>", ErrArgsRequired)
	}

	if len(args) > 2 {
		return "", "", fmt.Errorf("unexpected arguments: %v", args[2:])
	}

	err := checkCollection(args[0])
	if err != nil {
		return "", "", err
	}

	return args[0], args[1], nil
}

func readContent(o *IO, workDir, path string) (string, error) {
	if path != "" {
		if !filepath.IsAbs(path) {
			path = filepath.Join(workDir, path)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read content: %w", err)
		}

		return string(data), nil
	}

	if o.Stdin() == nil {
		return "", fmt.Errorf("%w: content via --file or stdin", ErrArgsRequired)
	}

	data, err := io.ReadAll(o.Stdin())
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}

	return string(data), nil
}
