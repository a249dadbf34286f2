package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/shelfbase/catalog-harvester/internal/catalog"
)

// maxLookupIdentifiers caps one lookup request. Larger lists belong in
// a harvest run, not an API call.
const maxLookupIdentifiers = 1000

// ErrUnknownMarket marks a lookup request naming a market the service
// does not serve.
var ErrUnknownMarket = errors.New("unknown market")

// Lookuper resolves an ad-hoc identifier list against one storefront.
// Implemented by the detail fetcher.
type Lookuper interface {
	FetchDetails(ctx context.Context, ids []catalog.ProductIdentifier) (catalog.BatchResult, error)
}

// LookupFactory returns a market-bound Lookuper. It must return
// ErrUnknownMarket (possibly wrapped) when the market code is not
// served, so the handler can answer 400 instead of 502.
type LookupFactory func(ctx context.Context, market string) (Lookuper, error)

type lookupRequest struct {
	Market      string   `json:"market"`
	Identifiers []string `json:"identifiers"`
}

type lookupReply struct {
	Market     string                         `json:"market"`
	Resolved   []catalog.ProductRecord        `json:"resolved"`
	Unresolved []catalog.UnresolvedIdentifier `json:"unresolved"`
}

// lookupProducts handles POST /v1/products:lookup. It resolves the
// submitted identifiers immediately against the storefront and returns
// the partition: every identifier comes back either as a full record or
// as unresolved with a reason.
func (s *Server) lookupProducts(w http.ResponseWriter, r *http.Request) {
	if s.lookup == nil {
		writeError(w, http.StatusServiceUnavailable, "product lookup not configured")
		return
	}
	var req lookupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Market == "" {
		writeError(w, http.StatusBadRequest, "market is required")
		return
	}
	if len(req.Identifiers) == 0 {
		writeError(w, http.StatusBadRequest, "at least one identifier required")
		return
	}
	if len(req.Identifiers) > maxLookupIdentifiers {
		writeError(w, http.StatusBadRequest, "too many identifiers")
		return
	}

	lookuper, err := s.lookup(r.Context(), req.Market)
	if err != nil {
		if errors.Is(err, ErrUnknownMarket) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("lookup session failed", zap.String("market", req.Market), zap.Error(err))
		writeError(w, http.StatusBadGateway, "storefront session unavailable")
		return
	}

	ids := make([]catalog.ProductIdentifier, 0, len(req.Identifiers))
	for _, id := range req.Identifiers {
		ids = append(ids, catalog.ProductIdentifier(id))
	}
	result, err := lookuper.FetchDetails(r.Context(), ids)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusRequestTimeout
		}
		s.logger.Error("lookup failed",
			zap.String("market", req.Market),
			zap.Int("identifiers", len(ids)),
			zap.Error(err))
		writeError(w, status, "storefront lookup failed")
		return
	}

	reply := lookupReply{
		Market:     req.Market,
		Resolved:   make([]catalog.ProductRecord, 0, len(result.Resolved)),
		Unresolved: result.Unresolved,
	}
	if reply.Unresolved == nil {
		reply.Unresolved = []catalog.UnresolvedIdentifier{}
	}
	// Records come back in request order, minus duplicates.
	seen := make(map[catalog.ProductIdentifier]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if rec, ok := result.Resolved[id]; ok {
			reply.Resolved = append(reply.Resolved, rec)
		}
	}
	writeJSON(w, http.StatusOK, reply)
}
