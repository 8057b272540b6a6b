package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
)

// SpecPathEnv names the environment variable that carries the canonical
// spec path to the generator command.
const SpecPathEnv = "DOCSYNC_SPEC_PATH"

// DocGenerator regenerates derived documentation from the spec at specPath.
type DocGenerator interface {
	Generate(ctx context.Context, specPath string) error
}

// ExecGenerator runs an external command. The spec path is exported as
// [SpecPathEnv]; output goes to Stdout and Stderr (os.Stdout and os.Stderr
// when nil).
type ExecGenerator struct {
	Argv   []string
	Dir    string
	Stdout io.Writer
	Stderr io.Writer
}

// Generate runs the command and waits for it. A non-zero exit is an error
// that includes the exit code.
func (g *ExecGenerator) Generate(ctx context.Context, specPath string) error {
	if len(g.Argv) == 0 {
		return errors.New("generator command is empty")
	}

	cmd := exec.CommandContext(ctx, g.Argv[0], g.Argv[1:]...)
	cmd.Dir = g.Dir
	cmd.Env = append(os.Environ(), SpecPathEnv+"="+specPath)

	cmd.Stdout = g.Stdout
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}

	cmd.Stderr = g.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	err := cmd.Run()
	if err == nil {
		return nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return fmt.Errorf("generator %q exited with code %d", g.Argv[0], exitErr.ExitCode())
	}

	return fmt.Errorf("run generator %q: %w", g.Argv[0], err)
}
