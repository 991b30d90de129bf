package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"portfolioquotes/internal/portfolio"
	"portfolioquotes/internal/quote"
)

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	q, err := s.resolver.Resolve(r.Context(), symbol)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, q)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	results, err := s.resolver.Search(r.Context(), query)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if results == nil {
		results = []quote.SearchResult{}
	}
	respondJSON(w, http.StatusOK, results)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.resolver.Status(r.Context()))
}

// positionView is an investment with its derived money fields.
type positionView struct {
	portfolio.Investment
	MarketValue string `json:"market_value"`
	CostBasis   string `json:"cost_basis"`
	GainLoss    string `json:"gain_loss"`
}

type portfolioResponse struct {
	Positions        []positionView `json:"positions"`
	TotalMarketValue string         `json:"total_market_value"`
	TotalCostBasis   string         `json:"total_cost_basis"`
	TotalGainLoss    string         `json:"total_gain_loss"`
}

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	invs, err := s.store.List(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := portfolioResponse{Positions: make([]positionView, 0, len(invs))}
	totalMV, totalCB := decimal.Zero, decimal.Zero
	for _, inv := range invs {
		mv, cb := inv.MarketValue(), inv.CostBasis()
		totalMV = totalMV.Add(mv)
		totalCB = totalCB.Add(cb)
		resp.Positions = append(resp.Positions, positionView{
			Investment:  inv,
			MarketValue: mv.StringFixed(2),
			CostBasis:   cb.StringFixed(2),
			GainLoss:    mv.Sub(cb).StringFixed(2),
		})
	}
	resp.TotalMarketValue = totalMV.StringFixed(2)
	resp.TotalCostBasis = totalCB.StringFixed(2)
	resp.TotalGainLoss = totalMV.Sub(totalCB).StringFixed(2)
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := s.store.Transactions(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if txs == nil {
		txs = []portfolio.Transaction{}
	}
	respondJSON(w, http.StatusOK, txs)
}

func (s *Server) handleAddInvestment(w http.ResponseWriter, r *http.Request) {
	var inv portfolio.Investment
	if err := decodeBody(r, &inv); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	created, err := s.store.Add(r.Context(), inv)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, created)
}

func (s *Server) handleUpdateInvestment(w http.ResponseWriter, r *http.Request) {
	var inv portfolio.Investment
	if err := decodeBody(r, &inv); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	inv.ID = chi.URLParam(r, "id")
	err := s.store.Update(r.Context(), inv)
	if errors.Is(err, portfolio.ErrNotFound) {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, inv)
}

type sellRequest struct {
	Quantity float64 `json:"quantity"`
	Price    float64 `json:"price"`
}

func (s *Server) handleSell(w http.ResponseWriter, r *http.Request) {
	var req sellRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	err := s.store.Sell(r.Context(), chi.URLParam(r, "id"), req.Quantity, req.Price)
	if errors.Is(err, portfolio.ErrNotFound) {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "sold"})
}

// handleRefresh triggers an immediate refresh cycle. When a cycle is
// already in flight the request is coalesced into it.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	go func() {
		defer cancel()
		s.refresher.RunOnce(ctx)
	}()
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "refresh scheduled"})
}

func decodeBody(r *http.Request, out any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
