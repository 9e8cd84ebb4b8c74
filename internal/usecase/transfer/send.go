package transfer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/dnsoftware/pvx-wallet/internal/constants"
	"github.com/dnsoftware/pvx-wallet/internal/crypto"
	"github.com/dnsoftware/pvx-wallet/internal/entity"
)

const operationSend = "send"

// Send перевод средств между кошельками
// Отклоненный перевод возвращается вместе с ошибкой в состоянии Rejected, ничего не изменив.
// Ошибка передачи в леджер после фиксации только логируется, перевод остается Committed
func (u *TransferUseCase) Send(ctx context.Context, req entity.SendRequest) (*entity.Transfer, error) {
	tracer := otel.Tracer("transfer")
	ctx, span := tracer.Start(ctx, "Send")
	defer span.End()

	amount, err := validateRequest(req)
	if err != nil {
		u.finished(entity.TransferRejected)
		return nil, err
	}

	t := entity.NewTransfer(req.From, req.To, amount, req.Memo, u.nonce(), u.now())
	span.SetAttributes(attribute.String("transfer.hash", t.Hash))

	reject := func(err error) (*entity.Transfer, error) {
		_ = t.Reject(err.Error())
		u.finished(entity.TransferRejected)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if !entity.IsClientError(err) {
			u.logger.Error("transfer failed", zap.String("hash", t.Hash), zap.String("from", t.From),
				zap.String("to", t.To), zap.Error(err))
		}
		return t, err
	}

	// отправитель
	if err = knownFormat(req.From, "sender"); err != nil {
		return reject(err)
	}
	_, spanSender := tracer.Start(ctx, "CheckSender")
	sender, err := u.storage.GetWalletByAddress(ctx, req.From)
	spanSender.End()
	if err != nil {
		return reject(err)
	}
	if sender == nil {
		return reject(fmt.Errorf("%w: sender wallet %s", entity.ErrNotFound, req.From))
	}

	// пароль проверяется один раз, без автоматических повторов
	ctxVerify, spanVerify := tracer.Start(ctx, "VerifyPassphrase")
	ok, err := u.verifier.Verify(ctxVerify, req.Passphrase, sender.PassphraseSalt, sender.PassphraseHash)
	spanVerify.End()
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return reject(err)
		}
		return reject(fmt.Errorf("%w: %s", entity.ErrCryptoOperation, err.Error()))
	}
	if !ok {
		u.logger.Warn("passphrase verification failed", zap.String("address", req.From), zap.String("operation", operationSend))
		if u.metrics != nil {
			u.metrics.AuthFailed(operationSend)
		}
		return reject(fmt.Errorf("%w: wrong passphrase", entity.ErrAuthentication))
	}

	// о блокировке узнает только владелец пароля
	if sender.Disabled {
		return reject(fmt.Errorf("%w: sender wallet %s", entity.ErrWalletDisabled, req.From))
	}

	// предварительная проверка; окончательная выполняется хранилищем под блокировкой
	if sender.Balance.LessThan(amount) {
		return reject(fmt.Errorf("%w: balance %s, amount %s", entity.ErrInsufficientFunds,
			entity.FormatUnits(sender.Balance), entity.FormatUnits(amount)))
	}

	// получатель: неизвестный адрес отклоняется, кошельки автоматически не создаются
	if err = knownFormat(req.To, "recipient"); err != nil {
		return reject(err)
	}
	recipient, err := u.storage.GetWalletByAddress(ctx, req.To)
	if err != nil {
		return reject(err)
	}
	if recipient == nil {
		return reject(fmt.Errorf("%w: recipient wallet %s", entity.ErrNotFound, req.To))
	}
	if recipient.Disabled {
		return reject(fmt.Errorf("%w: recipient wallet %s", entity.ErrWalletDisabled, req.To))
	}

	if err = t.Validate(); err != nil {
		return reject(err)
	}

	pending := *t
	if err = pending.Commit(); err != nil {
		return reject(err)
	}

	ctxApply, spanApply := tracer.Start(ctx, "ApplyTransfer")
	err = u.storage.ApplyTransfer(ctxApply, pending)
	spanApply.End()
	if err != nil {
		return reject(err)
	}

	_ = t.Commit()
	if u.cache != nil {
		u.cache.Invalidate(t.From, t.To)
	}
	u.finished(entity.TransferCommitted)
	u.logger.Info("transfer committed", zap.String("hash", t.Hash), zap.String("from", t.From),
		zap.String("to", t.To), zap.String("amount", entity.FormatUnits(t.Amount)))

	if u.ledger != nil {
		// перевод уже зафиксирован, отмена запроса клиентом не должна прерывать передачу в леджер
		ctxLedger, cancel := context.WithTimeout(context.WithoutCancel(ctx), constants.ContextTimeout*time.Second)
		defer cancel()
		ctxLedger, spanLedger := tracer.Start(ctxLedger, "LedgerSubmit")
		if err := u.ledger.Submit(ctxLedger, *t); err != nil {
			spanLedger.RecordError(err)
			u.logger.Error("ledger hand-off failed", zap.String("hash", t.Hash), zap.Error(err))
		}
		spanLedger.End()
	}

	return t, nil
}

// validateRequest проверка формы запроса до любого обращения к хранилищу
func validateRequest(req entity.SendRequest) (decimal.Decimal, error) {
	if req.From == "" || req.To == "" {
		return decimal.Zero, fmt.Errorf("%w: sender and recipient are required", entity.ErrValidation)
	}
	if req.From == req.To {
		return decimal.Zero, fmt.Errorf("%w: sender and recipient must differ", entity.ErrValidation)
	}
	if req.Passphrase == "" {
		return decimal.Zero, fmt.Errorf("%w: passphrase is required", entity.ErrValidation)
	}
	if len(req.Memo) > constants.MaxMemoLength {
		return decimal.Zero, fmt.Errorf("%w: memo exceeds %d bytes", entity.ErrValidation, constants.MaxMemoLength)
	}

	return entity.ParseAmount(req.Amount)
}

// knownFormat адрес неверного формата не может принадлежать ни одному кошельку
func knownFormat(address string, role string) error {
	if !crypto.ValidateAddress(address) {
		return fmt.Errorf("%w: %s wallet %s", entity.ErrNotFound, role, address)
	}
	return nil
}

func (u *TransferUseCase) finished(status entity.TransferStatus) {
	if u.metrics != nil {
		u.metrics.TransferFinished(string(status))
	}
}
