package controller

import (
	"context"
	"net/http"

	"github.com/go-jose/go-jose/v4/json"
	"go.uber.org/zap"
)

// HandleSync runs one full sync pass on demand: confirm pending
// transactions, reconcile lock weights, refresh affected balances. Safe to
// invoke while a scheduled pass is running.
func (c *Controller) HandleSync(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), c.App.SyncBudget)
	defer cancel()

	result, err := c.App.Sync(ctx)
	if err != nil {
		c.App.Logger.Error("manual sync pass failed", zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": err.Error()})
		return
	}

	_ = json.NewEncoder(w).Encode(result)
}
