package cli

import (
	"context"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/docsync/pkg/frontmatter"
)

// LsCmd returns the ls command.
func LsCmd(e *env) *Command {
	return &Command{
		Flags:   flag.NewFlagSet("ls", flag.ContinueOnError),
		Usage:   "ls [collection]",
		Aliases: []string{"list"},
		Short:   "List records",
		Long:    "List records of one collection, or of all collections when none is given.",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			return execLs(ctx, o, e, args)
		},
	}
}

func execLs(ctx context.Context, o *IO, e *env, args []string) error {
	names := collections

	if len(args) > 0 {
		err := checkCollection(args[0])
		if err != nil {
			return err
		}

		names = args[:1]
	}

	a, err := e.open(ctx, o)
	if err != nil {
		return err
	}
	defer a.close()

	var rows [][]string

	for _, name := range names {
		records, err := a.store.List(ctx, name)
		if err != nil {
			return err
		}

		for _, rec := range records {
			fields, _ := frontmatter.ParseString(rec.Content)
			title, _ := fields.GetString("title")

			rows = append(rows, []string{
				rec.Collection,
				rec.ID,
				a.relPath(rec.Collection, rec.ID),
				strconv.Itoa(len(rec.Content)),
				rec.UpdatedAt.Local().Format(time.DateTime),
				title,
			})
		}
	}

	if len(rows) == 0 {
		o.Println("no records")

		return nil
	}

	o.Println(renderTable(
		[]string{"Collection", "ID", "Path", "Bytes", "Updated", "Title"},
		rows,
		map[int]bool{3: true},
	))

	return nil
}

// renderTable renders rows with a rounded border. Columns whose index is in
// rightAlign are right aligned.
func renderTable(headers []string, rows [][]string, rightAlign map[int]bool) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i, h := range headers {
		header[i] = h
	}

	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := range columns {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}

		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := range columns {
		align := text.AlignLeft
		if rightAlign[i] {
			align = text.AlignRight
		}

		configs = append(configs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}

	tw.SetColumnConfigs(configs)

	return tw.Render()
}
