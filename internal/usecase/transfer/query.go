package transfer

import (
	"context"
	"encoding/hex"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/dnsoftware/pvx-wallet/internal/constants"
	"github.com/dnsoftware/pvx-wallet/internal/crypto"
	"github.com/dnsoftware/pvx-wallet/internal/entity"
)

// Get зафиксированный перевод по хешу
func (u *TransferUseCase) Get(ctx context.Context, hash string) (entity.Transfer, error) {
	ctx, span := otel.Tracer("transfer").Start(ctx, "Get")
	defer span.End()

	if b, err := hex.DecodeString(hash); err != nil || len(b) != 32 {
		return entity.Transfer{}, fmt.Errorf("%w: malformed transaction hash", entity.ErrValidation)
	}

	t, err := u.storage.GetTransfer(ctx, hash)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return entity.Transfer{}, err
	}
	if t == nil {
		return entity.Transfer{}, fmt.Errorf("%w: transfer %s", entity.ErrNotFound, hash)
	}

	return *t, nil
}

// History последние переводы кошелька (входящие и исходящие), новые первыми
func (u *TransferUseCase) History(ctx context.Context, address string, limit int) ([]entity.Transfer, error) {
	ctx, span := otel.Tracer("transfer").Start(ctx, "History")
	defer span.End()

	if !crypto.ValidateAddress(address) {
		return nil, fmt.Errorf("%w: wallet %s", entity.ErrNotFound, address)
	}
	if limit <= 0 {
		limit = constants.DefaultHistoryLimit
	}
	if limit > constants.MaxHistoryLimit {
		limit = constants.MaxHistoryLimit
	}

	w, err := u.storage.GetWalletByAddress(ctx, address)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if w == nil {
		return nil, fmt.Errorf("%w: wallet %s", entity.ErrNotFound, address)
	}

	transfers, err := u.storage.ListTransfersByAddress(ctx, address, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	return transfers, nil
}

// Recent последние зафиксированные переводы по всем кошелькам
func (u *TransferUseCase) Recent(ctx context.Context, limit int) ([]entity.Transfer, error) {
	ctx, span := otel.Tracer("transfer").Start(ctx, "Recent")
	defer span.End()

	if limit <= 0 {
		limit = constants.DefaultRecentLimit
	}
	limit = min(limit, constants.MaxHistoryLimit)

	transfers, err := u.storage.ListRecentTransfers(ctx, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	return transfers, nil
}
