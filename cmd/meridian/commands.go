package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/meridiandb/meridian/pkg/chunking"
	"github.com/meridiandb/meridian/pkg/jobs"
	"github.com/meridiandb/meridian/pkg/logger"
	"github.com/meridiandb/meridian/pkg/search"
	"github.com/meridiandb/meridian/pkg/server"
)

// ServeCmd starts the HTTP API server with the job worker pool.
type ServeCmd struct {
	Host string `help:"Listen host (overrides config)."`
	Port int    `help:"Listen port (overrides config)."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	cfg, err := loadConfig(cli)
	if err != nil {
		return err
	}
	if c.Host != "" {
		cfg.Server.Host = c.Host
	}
	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}

	ctx, cancel := signalContext()
	defer cancel()

	p, err := buildPipeline(ctx, cfg)
	if err != nil {
		return err
	}
	defer p.Close()

	queue := jobs.NewQueue(cfg.Queue, p.controller)
	if err := queue.Start(ctx); err != nil {
		return fmt.Errorf("failed to start worker pool: %w", err)
	}
	defer queue.Stop()

	srv, err := server.New(server.Options{
		Config:     cfg,
		Engine:     p.engine,
		Controller: p.controller,
		Queue:      queue,
		Jobs:       p.jobs,
	})
	if err != nil {
		return err
	}

	return srv.Start(ctx)
}

// IngestCmd runs one ingestion job to completion in-process.
type IngestCmd struct {
	File       string `arg:"" help:"Path to the document." type:"path"`
	Collection string `help:"Target collection." default:"default"`
	Strategy   string `help:"Chunking strategy (fixed_size, sentence, paragraph, markdown)."`
	ChunkSize  int    `name:"chunk-size" help:"Maximum chunk size in characters."`
	Overlap    int    `help:"Chunk overlap in characters."`
}

func (c *IngestCmd) Run(cli *CLI) error {
	cfg, err := loadConfig(cli)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	p, err := buildPipeline(ctx, cfg)
	if err != nil {
		return err
	}
	defer p.Close()

	chunkCfg := cfg.Chunking
	if c.Strategy != "" {
		chunkCfg.Strategy = chunking.Strategy(c.Strategy)
	}
	if c.ChunkSize > 0 {
		chunkCfg.Size = c.ChunkSize
	}
	if c.Overlap > 0 {
		chunkCfg.Overlap = c.Overlap
	}

	fileType := strings.ToLower(strings.TrimPrefix(filepath.Ext(c.File), "."))
	job, err := p.controller.Submit(ctx, c.Collection, c.File, fileType, chunkCfg)
	if err != nil {
		return err
	}

	logger.GetLogger().Info("ingestion started", "job_id", job.ID, "file", c.File)
	if err := p.controller.Process(ctx, job.ID); err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}

	done, err := p.jobs.Get(ctx, job.ID)
	if err != nil {
		return err
	}
	fmt.Printf("Ingested %s into %q: %d chunks processed, %d failed (%s)\n",
		filepath.Base(c.File), c.Collection, done.ProcessedChunks, done.FailedChunks, done.Status)
	return nil
}

// SearchCmd runs one query and prints the results.
type SearchCmd struct {
	Query      string `arg:"" help:"Query text."`
	Collection string `help:"Collection to search." default:"default"`
	TopK       int    `name:"top-k" help:"Maximum results." default:"10"`
	Hybrid     bool   `help:"Blend vector similarity with full-text relevance."`
	JSON       bool   `help:"Print results as JSON."`
}

func (c *SearchCmd) Run(cli *CLI) error {
	cfg, err := loadConfig(cli)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	p, err := buildPipeline(ctx, cfg)
	if err != nil {
		return err
	}
	defer p.Close()

	req := search.Request{
		Collection: c.Collection,
		QueryText:  c.Query,
		Limit:      c.TopK,
	}

	var results []search.Result
	if c.Hybrid {
		results, err = p.engine.Hybrid(ctx, req)
	} else {
		results, err = p.engine.Similarity(ctx, req)
	}
	if err != nil {
		return err
	}

	if c.JSON {
		return json.NewEncoder(os.Stdout).Encode(results)
	}

	if len(results) == 0 {
		fmt.Println("No results.")
		return nil
	}
	for i, result := range results {
		fmt.Printf("%d. [%.6f] %s\n", i+1, result.Score, firstLine(result.Content))
	}
	return nil
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[:idx]
	}
	if runes := []rune(s); len(runes) > 120 {
		s = string(runes[:120]) + "..."
	}
	return s
}
