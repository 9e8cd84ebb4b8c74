package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dnsoftware/pvx-wallet/internal/constants"
	"github.com/dnsoftware/pvx-wallet/internal/entity"
)

func (s *Handler) sendTransfer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		From       string `json:"from"`
		To         string `json:"to"`
		Amount     string `json:"amount"`
		Passphrase string `json:"passphrase"`
		Memo       string `json:"memo"`
	}
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	if !s.allow(w, s.sendLimiter, "send", req.From) {
		return
	}

	t, err := s.transfers.Send(r.Context(), entity.SendRequest{
		From:       req.From,
		To:         req.To,
		Amount:     req.Amount,
		Passphrase: req.Passphrase,
		Memo:       req.Memo,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, sendResponse{TransactionHash: t.Hash, Status: string(t.Status)})
}

func (s *Handler) getTransfer(w http.ResponseWriter, r *http.Request) {
	t, err := s.transfers.Get(r.Context(), chi.URLParam(r, "hash"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newTransferResponse(t))
}

func (s *Handler) transferHistory(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	limit, err := queryInt(r, "limit", constants.DefaultHistoryLimit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	transfers, err := s.transfers.History(r.Context(), address, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := historyResponse{
		Address:   address,
		Transfers: make([]transferResponse, 0, len(transfers)),
	}
	for _, t := range transfers {
		resp.Transfers = append(resp.Transfers, newTransferResponse(t))
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Handler) recentTransfers(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", constants.DefaultRecentLimit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	transfers, err := s.transfers.Recent(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := recentResponse{Transfers: make([]transferResponse, 0, len(transfers))}
	for _, t := range transfers {
		resp.Transfers = append(resp.Transfers, newTransferResponse(t))
	}

	writeJSON(w, http.StatusOK, resp)
}
