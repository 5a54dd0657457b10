package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ridgehaul/ticketflow/internal/extract"
	"github.com/ridgehaul/ticketflow/internal/fetcher"
	"github.com/ridgehaul/ticketflow/internal/metadata"
	"github.com/ridgehaul/ticketflow/internal/pipeline"
	"github.com/ridgehaul/ticketflow/internal/store"
)

// pipelineEnv holds the initialized store, source, and pipeline needed by
// the process/serve commands.
type pipelineEnv struct {
	Store        store.Store
	Source       fetcher.Source
	Pipeline     *pipeline.Pipeline
	Orchestrator *pipeline.Orchestrator
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initPipeline sets up the store, scan source, extractor, and path schema,
// and builds the pipeline and orchestrator. Callers should defer
// env.Close().
func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	source, err := initSource()
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	extractor, err := extract.NewExtractor(cfg.Extract, cfg.Anthropic.Key)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	var schema *metadata.Schema
	if cfg.Metadata.SchemaPath != "" {
		schema, err = metadata.LoadSchema(cfg.Metadata.SchemaPath)
		if err != nil {
			_ = st.Close()
			return nil, err
		}
		zap.L().Info("path schema loaded",
			zap.String("path", cfg.Metadata.SchemaPath),
			zap.Int("rules", len(schema.Rules)),
		)
	}

	reader := extract.NewPdfToText(cfg.Reader.PdfToTextPath)
	policy := cfg.Policy()

	p := pipeline.New(st, reader, extractor, schema, policy.DuplicateWindow)
	return &pipelineEnv{
		Store:        st,
		Source:       source,
		Pipeline:     p,
		Orchestrator: pipeline.NewOrchestrator(st, source, p, policy),
	}, nil
}

func initSource() (fetcher.Source, error) {
	switch cfg.Source.Kind {
	case "local":
		return fetcher.NewLocalSource(cfg.Source.Dir), nil
	case "ftp":
		return fetcher.NewFTPSource(cfg.Source.FTP), nil
	default:
		return nil, eris.Errorf("unsupported source kind: %s", cfg.Source.Kind)
	}
}
