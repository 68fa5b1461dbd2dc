package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/Flashl3opard/structify/internal/mindmap"
	"github.com/Flashl3opard/structify/pkg/logging/logging"
)

// Mindmap handles POST /api/mindmap: a label tree in, a laid-out graph out.
func Mindmap(w http.ResponseWriter, r *http.Request) {
	logger := logging.L(r.Context())

	body, ok := readBody(w, r)
	if !ok {
		return
	}

	tree, err := mindmap.DecodeJSON(body)
	if err != nil {
		logger.Info("mindmap_rejected", zap.Error(err))
		writeError(w, http.StatusBadRequest, msgInvalidJSON)
		return
	}

	graph, err := mindmap.Layout(tree)
	if err != nil {
		logger.Info("mindmap_rejected", zap.Error(err))
		writeError(w, http.StatusBadRequest, msgInvalidJSON)
		return
	}

	logger.Debug("mindmap_laid_out",
		zap.Int("nodes", len(graph.Nodes)),
		zap.Int("edges", len(graph.Edges)),
	)
	writeJSON(w, http.StatusOK, graph)
}
