package rest

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dnsoftware/pvx-wallet/internal/constants"
	"github.com/dnsoftware/pvx-wallet/internal/entity"
	"github.com/dnsoftware/pvx-wallet/internal/usecase/wallet"
)

const adminTokenHeader = "X-Admin-Token"

func (s *Handler) createWallet(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, s.createLimiter, "create", remoteIP(r)) {
		return
	}

	var req struct {
		Passphrase string `json:"passphrase"`
	}
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	info, err := s.wallets.Create(r.Context(), req.Passphrase)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, walletCreatedResponse{
		Address:   info.Address,
		PublicKey: info.PublicKey,
		CreatedAt: info.CreatedAt,
	})
}

func (s *Handler) importWallet(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, s.createLimiter, "import", remoteIP(r)) {
		return
	}

	var req struct {
		PrivateKey string `json:"privateKey"`
		Passphrase string `json:"passphrase"`
		Overwrite  bool   `json:"overwrite"`
	}
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	info, err := s.wallets.Import(r.Context(), wallet.ImportRequest{
		PrivateKey: req.PrivateKey,
		Passphrase: req.Passphrase,
		Overwrite:  req.Overwrite,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, walletCreatedResponse{
		Address:   info.Address,
		PublicKey: info.PublicKey,
		CreatedAt: info.CreatedAt,
	})
}

func (s *Handler) exportWallet(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	if !s.allow(w, s.walletLimiter, "export", address) {
		return
	}

	var req struct {
		Passphrase string `json:"passphrase"`
	}
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	keys, err := s.wallets.Export(r.Context(), address, req.Passphrase)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, exportResponse{PublicKey: keys.PublicKey, PrivateKey: keys.PrivateKey})
}

func (s *Handler) changePassphrase(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	if !s.allow(w, s.walletLimiter, "passphrase", address) {
		return
	}

	var req struct {
		OldPassphrase string `json:"oldPassphrase"`
		NewPassphrase string `json:"newPassphrase"`
	}
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.wallets.ChangePassphrase(r.Context(), address, req.OldPassphrase, req.NewPassphrase); err != nil {
		s.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Handler) disableWallet(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	if !s.allow(w, s.walletLimiter, "disable", address) {
		return
	}

	var req struct {
		Passphrase string `json:"passphrase"`
	}
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.wallets.Disable(r.Context(), address, req.Passphrase); err != nil {
		s.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// creditWallet зачисление от внешних начислений, только с токеном администратора
func (s *Handler) creditWallet(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get(adminTokenHeader)
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.AdminToken)) != 1 {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid admin token"})
		return
	}

	address := chi.URLParam(r, "address")
	var req struct {
		Amount string `json:"amount"`
	}
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	balance, err := s.wallets.Credit(r.Context(), address, req.Amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, creditResponse{Address: address, Balance: entity.FormatUnits(balance)})
}

func (s *Handler) getWallet(w http.ResponseWriter, r *http.Request) {
	info, err := s.wallets.Get(r.Context(), chi.URLParam(r, "address"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newWalletResponse(info))
}

func (s *Handler) listWallets(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page", 1)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit", constants.DefaultWalletsPageLimit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	wallets, total, err := s.wallets.List(r.Context(), page, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := walletListResponse{
		Wallets: make([]walletResponse, 0, len(wallets)),
		Total:   total,
		Page:    max(page, 1),
		Limit:   min(max(limit, 1), constants.MaxWalletsPageLimit),
	}
	for _, info := range wallets {
		resp.Wallets = append(resp.Wallets, newWalletResponse(info))
	}

	writeJSON(w, http.StatusOK, resp)
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%w: invalid query parameter %s", entity.ErrValidation, name)
	}
	return v, nil
}
