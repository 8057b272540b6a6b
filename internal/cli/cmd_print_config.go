package cli

import (
	"context"
	"strings"

	flag "github.com/spf13/pflag"
)

// PrintConfigCmd returns the print-config command.
func PrintConfigCmd(e *env) *Command {
	return &Command{
		Flags: flag.NewFlagSet("print-config", flag.ContinueOnError),
		Usage: "print-config",
		Short: "Show resolved configuration",
		Long:  "Display the effective configuration and which files it was loaded from.",
		Exec: func(_ context.Context, o *IO, _ []string) error {
			cfg := e.cfg

			o.Println("work_dir=" + cfg.WorkDir)
			o.Println("docs_root=" + cfg.DocsRootAbs)
			o.Println("content_ext=" + cfg.ContentExt)
			o.Println("db_path=" + cfg.DBPathAbs)
			o.Println("spec_path=" + cfg.SpecPathAbs)
			o.Println("generator=" + strings.Join(cfg.Generator, " "))
			o.Println("http_timeout=" + cfg.HTTPTimeoutDur.String())
			o.Println("log_level=" + cfg.LogLevel)
			o.Println("log_format=" + cfg.LogFormat)

			o.Println("")
			o.Println("# sources")

			if cfg.Sources.Global == "" && cfg.Sources.Project == "" {
				o.Println("(defaults only)")

				return nil
			}

			if cfg.Sources.Global != "" {
				o.Println("global_config=" + cfg.Sources.Global)
			}

			if cfg.Sources.Project != "" {
				o.Println("project_config=" + cfg.Sources.Project)
			}

			return nil
		},
	}
}
