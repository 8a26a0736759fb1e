package server

import (
	"net/http"

	"github.com/meridiandb/meridian/pkg/chunking"
)

// PipelineTemplate is a named chunking preset for common ingestion
// workloads.
type PipelineTemplate struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Config      chunking.Config `json:"config"`
}

var pipelineTemplates = []PipelineTemplate{
	{
		ID:          "rag",
		Name:        "RAG Pipeline",
		Description: "Optimized for retrieval-augmented generation",
		Config: chunking.Config{
			Strategy: chunking.StrategySentence,
			Size:     500,
			Overlap:  50,
		},
	},
	{
		ID:          "semantic-search",
		Name:        "Semantic Search",
		Description: "Optimized for semantic search applications",
		Config: chunking.Config{
			Strategy: chunking.StrategyFixedSize,
			Size:     1000,
			Overlap:  100,
		},
	},
	{
		ID:          "faq",
		Name:        "FAQ Pipeline",
		Description: "Optimized for question-answer pairs",
		Config: chunking.Config{
			Strategy: chunking.StrategyParagraph,
			Size:     300,
			Overlap:  0,
		},
	},
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, pipelineTemplates)
}
