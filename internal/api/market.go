package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"papertrade/internal/model"
)

// maxSearchResults bounds a symbol search.
const maxSearchResults = 5

type historyResponse struct {
	Symbol  string             `json:"symbol"`
	Horizon model.Horizon      `json:"horizon"`
	Data    []model.PricePoint `json:"data"`
}

type searchResponse struct {
	Query   string        `json:"query"`
	Results []model.Quote `json:"results"`
}

func (s *server) handlePrice(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(strings.TrimSpace(r.PathValue("symbol")))
	q, err := s.Market.CurrentPrice(r.Context(), symbol)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// handleHistory serves one horizon's bars, oldest first. The horizon
// defaults to shortterm.
func (s *server) handleHistory(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(strings.TrimSpace(r.PathValue("symbol")))
	h := model.HorizonShortTerm
	if v := r.URL.Query().Get("horizon"); v != "" {
		h = model.Horizon(strings.ToLower(v))
	}
	if !h.Valid() {
		writeError(w, http.StatusBadRequest, "unknown horizon "+string(h), nil)
		return
	}
	bars, err := s.Market.History(r.Context(), symbol, h)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, historyResponse{Symbol: symbol, Horizon: h, Data: bars})
}

// handleSearch matches the query against the tradable universe and quotes
// the first few hits. Symbols without a quote are left out.
func (s *server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("query")))
	if query == "" {
		writeError(w, http.StatusBadRequest, "query is required", nil)
		return
	}
	var hits []string
	for _, sym := range s.Universe {
		if strings.Contains(sym, query) {
			hits = append(hits, sym)
			if len(hits) == maxSearchResults {
				break
			}
		}
	}

	quotes := make([]*model.Quote, len(hits))
	var wg sync.WaitGroup
	for i, sym := range hits {
		wg.Add(1)
		go func(i int, sym string) {
			defer wg.Done()
			q, err := s.Market.CurrentPrice(r.Context(), sym)
			if err != nil {
				s.log.Debug("search hit without quote", "symbol", sym, "error", err)
				return
			}
			quotes[i] = &q
		}(i, sym)
	}
	wg.Wait()

	resp := searchResponse{Query: query, Results: []model.Quote{}}
	for _, q := range quotes {
		if q != nil {
			resp.Results = append(resp.Results, *q)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type planRequest struct {
	Symbol string `json:"symbol"`
}

// handleTradePlan is the body-addressed form of the signals route.
func (s *server) handleTradePlan(w http.ResponseWriter, r *http.Request) {
	var req planRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error(), nil)
		return
	}
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol is required", nil)
		return
	}
	s.analyze(w, r, symbol)
}
