package controller

import (
	"net/http"
	"time"

	"github.com/go-jose/go-jose/v4/json"
	"go.uber.org/zap"
)

// HeightResponse is the payload of the chain height endpoint.
type HeightResponse struct {
	CurrentHeight         uint64 `json:"currentHeight"`
	SecondsUntilNextBlock uint64 `json:"secondsUntilNextBlock"`
	Network               string `json:"network"`
	Cached                bool   `json:"cached"`
}

// HandleChainHeight serves the current chain height through the read-through
// cache. When the oracle is down the last persisted height is served with
// cached:true; with no persisted height at all the endpoint answers 503.
func (c *Controller) HandleChainHeight(w http.ResponseWriter, r *http.Request) {
	res, err := c.App.Heights.GetHeight(r.Context())
	if err != nil {
		c.App.Logger.Warn("chain height unavailable", zap.Error(err))
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "chain height unavailable"})
		return
	}

	_ = json.NewEncoder(w).Encode(HeightResponse{
		CurrentHeight:         res.Height,
		SecondsUntilNextBlock: res.SecondsUntilNextBlock(c.App.BlockInterval, time.Now()),
		Network:               res.Network,
		Cached:                res.Stale,
	})
}
