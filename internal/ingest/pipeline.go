// Package ingest fetches remote API descriptions, persists them to a
// canonical path and triggers documentation regeneration.
//
// A [Pipeline] subscribes to apispecs mutations. Every step is allowed to
// fail: failures are logged and the triggering mutation is never affected.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/ohler55/ojg/oj"

	"github.com/calvinalkan/docsync/internal/store"
	"github.com/calvinalkan/docsync/pkg/fs"
)

var (
	// ErrNoSpecURL indicates the descriptor has no specUrl to fetch.
	ErrNoSpecURL = errors.New("api spec has no specUrl")

	// ErrFetch indicates the HTTP request failed or returned a non-2xx status.
	ErrFetch = errors.New("fetch spec")

	// ErrInvalidJSON indicates the fetched body is not JSON.
	ErrInvalidJSON = errors.New("spec body is not valid JSON")

	// ErrGenerate indicates the doc generator failed after the spec was saved.
	ErrGenerate = errors.New("generate docs")
)

// maxSpecBytes bounds how much of a response body is read.
const maxSpecBytes = 64 << 20

// Pipeline runs fetch, validate, persist and generate for one spec at a time.
type Pipeline struct {
	client   *http.Client
	fs       fs.FS
	specPath string
	gen      DocGenerator
	log      *slog.Logger
}

// New returns a Pipeline writing to specPath. A nil generator skips
// regeneration; a nil client uses [http.DefaultClient].
func New(client *http.Client, fsys fs.FS, specPath string, gen DocGenerator, logger *slog.Logger) *Pipeline {
	if client == nil {
		client = http.DefaultClient
	}

	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Pipeline{client: client, fs: fsys, specPath: specPath, gen: gen, log: logger}
}

// SpecPath returns the canonical spec path.
func (p *Pipeline) SpecPath() string {
	return p.specPath
}

// Handle reacts to created and updated apispecs events whose descriptor
// carries a specUrl. It never returns an error.
func (p *Pipeline) Handle(ctx context.Context, ev store.Event) {
	if ev.Collection != store.CollectionAPISpecs {
		return
	}

	if ev.Kind != store.EventCreated && ev.Kind != store.EventUpdated {
		return
	}

	spec, err := DecodeApiSpec(ev.Content)
	if err != nil {
		p.log.Warn("spec ingestion skipped",
			slog.String("spec", ev.RecordID),
			slog.Any("err", err),
		)

		return
	}

	if spec.Name == "" {
		spec.Name = ev.RecordID
	}

	if spec.SpecURL == "" {
		p.log.Debug("spec ingestion skipped: no specUrl", slog.String("spec", spec.Name))

		return
	}

	err = p.Ingest(ctx, spec)
	if err != nil {
		p.log.Warn("spec ingestion failed",
			slog.String("spec", spec.Name),
			slog.String("url", spec.SpecURL),
			slog.Any("err", err),
		)
	}
}

// Ingest fetches spec.SpecURL, validates the body as JSON, writes it
// verbatim to the canonical path and invokes the generator. Nothing is
// written when the fetch or validation fails.
func (p *Pipeline) Ingest(ctx context.Context, spec ApiSpec) error {
	if spec.SpecURL == "" {
		return ErrNoSpecURL
	}

	body, err := p.fetch(ctx, spec.SpecURL)
	if err != nil {
		return err
	}

	doc, err := oj.Parse(body)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidJSON, err)
	}

	err = p.fs.MkdirAll(filepath.Dir(p.specPath), 0o755)
	if err != nil {
		return fmt.Errorf("save spec: create dir: %w", err)
	}

	err = p.fs.WriteFileAtomic(p.specPath, body, 0o644)
	if err != nil {
		return fmt.Errorf("save spec: %w", err)
	}

	title, version := specSummary(doc)
	p.log.Info("spec saved",
		slog.String("spec", spec.Name),
		slog.String("path", p.specPath),
		slog.Int("bytes", len(body)),
		slog.String("title", title),
		slog.String("version", version),
	)

	if p.gen == nil {
		return nil
	}

	err = p.gen.Generate(ctx, p.specPath)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrGenerate, err)
	}

	p.log.Info("docs regenerated", slog.String("spec", spec.Name))

	return nil
}

func (p *Pipeline) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}

	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}

	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: unexpected status %s", ErrFetch, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSpecBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrFetch, err)
	}

	return body, nil
}
