package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/dnsoftware/pvx-wallet/internal/entity"
)

const serviceUnavailable = "service unavailable"

type errorResponse struct {
	Error string `json:"error"`
}

type walletCreatedResponse struct {
	Address   string    `json:"address"`
	PublicKey string    `json:"publicKey"`
	CreatedAt time.Time `json:"createdAt"`
}

type walletResponse struct {
	Address    string    `json:"address"`
	PublicKey  string    `json:"publicKey"`
	Balance    string    `json:"balance"`
	Disabled   bool      `json:"disabled"`
	CreatedAt  time.Time `json:"createdAt"`
	LastSynced time.Time `json:"lastSynced"`
}

type walletListResponse struct {
	Wallets []walletResponse `json:"wallets"`
	Total   int              `json:"total"`
	Page    int              `json:"page"`
	Limit   int              `json:"limit"`
}

type exportResponse struct {
	PublicKey  string `json:"publicKey"`
	PrivateKey string `json:"privateKey"`
}

type creditResponse struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}

type sendResponse struct {
	TransactionHash string `json:"transactionHash"`
	Status          string `json:"status"`
}

type transferResponse struct {
	Hash      string    `json:"hash"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Amount    string    `json:"amount"`
	Memo      string    `json:"memo,omitempty"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

type historyResponse struct {
	Address   string             `json:"address"`
	Transfers []transferResponse `json:"transfers"`
}

type recentResponse struct {
	Transfers []transferResponse `json:"transfers"`
}

func newWalletResponse(info entity.WalletInfo) walletResponse {
	return walletResponse{
		Address:    info.Address,
		PublicKey:  info.PublicKey,
		Balance:    entity.FormatUnits(info.Balance),
		Disabled:   info.Disabled,
		CreatedAt:  info.CreatedAt,
		LastSynced: info.LastSynced,
	}
}

func newTransferResponse(t entity.Transfer) transferResponse {
	return transferResponse{
		Hash:      t.Hash,
		From:      t.From,
		To:        t.To,
		Amount:    entity.FormatUnits(t.Amount),
		Memo:      t.Memo,
		Status:    string(t.Status),
		CreatedAt: t.CreatedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

// statusFor код ответа по таксономии ошибок
func statusFor(err error) int {
	switch {
	case errors.Is(err, entity.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, entity.ErrAuthentication):
		return http.StatusUnauthorized
	case errors.Is(err, entity.ErrWalletDisabled):
		return http.StatusForbidden
	case errors.Is(err, entity.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, entity.ErrDuplicateAddress):
		return http.StatusConflict
	case errors.Is(err, entity.ErrInsufficientFunds):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusServiceUnavailable
	}
}

// writeError клиентские ошибки отдаются как есть, внутренние только в лог
func (s *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if entity.IsClientError(err) {
		writeJSON(w, status, errorResponse{Error: err.Error()})
		return
	}

	s.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	writeJSON(w, status, errorResponse{Error: serviceUnavailable})
}

// decode разбор тела запроса; любая ошибка разбора ErrValidation
func (s *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)

	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: malformed request body", entity.ErrValidation)
	}
	return nil
}
