package indexing

import "runtime"

// Defaults is injected into any stage that opts in (via
// WithIndexingDefaults/WithBatchIndexingDefaults-style constructors) so
// stages can share a default LLM client without the pipeline exposing a
// process-wide singleton. Modeled as an explicit value passed down, per
// spec.md §9's "Global defaults (IndexingDefaults)" design note.
type Defaults struct {
	// LLMClient is an opaque default client (SimplePrompt/EmbeddingModel/
	// etc.) that stages without an explicit client of their own may fall
	// back to. The indexing package never calls into it directly.
	LLMClient any
}

// Config holds the pipeline-wide tunables. Concurrency defaults to the
// number of logical CPUs, batch size to 256, matching spec.md §4.4.
type Config struct {
	Concurrency int
	BatchSize   int
}

func defaultConfig() Config {
	return Config{
		Concurrency: runtime.NumCPU(),
		BatchSize:   256,
	}
}

func (c Config) concurrencyOr(override int) int {
	if override > 0 {
		return override
	}
	return c.Concurrency
}

func (c Config) batchSizeOr(override int) int {
	if override > 0 {
		return override
	}
	return c.BatchSize
}
