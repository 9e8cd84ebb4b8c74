package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/dnsoftware/pvx-wallet/internal/dto"
	"github.com/dnsoftware/pvx-wallet/internal/entity"
)

type capturedMessage struct {
	key   string
	value []byte
}

type fakeWriter struct {
	messages []capturedMessage
	err      error
}

func (w *fakeWriter) SendMessage(_ context.Context, key string, value []byte) error {
	w.messages = append(w.messages, capturedMessage{key: key, value: value})
	return w.err
}

type sinkFunc func(ctx context.Context, t entity.Transfer) error

func (f sinkFunc) Submit(ctx context.Context, t entity.Transfer) error { return f(ctx, t) }

type resultMetrics map[string]int

func (m resultMetrics) LedgerSubmitted(sink string, err error) {
	if err != nil {
		m[sink+":error"]++
		return
	}
	m[sink+":ok"]++
}

func committedTransfer(t *testing.T) entity.Transfer {
	t.Helper()
	tr := entity.NewTransfer("PVX_from", "PVX_to", decimal.NewFromInt(12345), "memo", "nonce", time.Now())
	require.NoError(t, tr.Validate())
	require.NoError(t, tr.Commit())
	return *tr
}

func TestKafkaLedger(t *testing.T) {
	writer := &fakeWriter{}
	l := NewKafkaLedger(writer)
	tr := committedTransfer(t)

	require.NoError(t, l.Submit(context.Background(), tr))
	require.Len(t, writer.messages, 1)
	assert.Equal(t, "PVX_from", writer.messages[0].key)

	var msg dto.TransferMessage
	require.NoError(t, json.Unmarshal(writer.messages[0].value, &msg))
	assert.Equal(t, tr.Hash, msg.Hash)
	assert.Equal(t, "12345", msg.Amount)

	back, err := msg.ToTransfer()
	require.NoError(t, err)
	assert.Equal(t, tr.Hash, back.Hash)
	assert.True(t, tr.Amount.Equal(back.Amount))

	pending := entity.NewTransfer("PVX_from", "PVX_to", decimal.NewFromInt(1), "", "n", time.Now())
	assert.ErrorIs(t, l.Submit(context.Background(), *pending), entity.ErrInvalidTransition)
	assert.Len(t, writer.messages, 1)
}

func TestFanout(t *testing.T) {
	metrics := resultMetrics{}
	var delivered []string

	f := NewFanout(metrics, zaptest.NewLogger(t)).
		Add("first", sinkFunc(func(_ context.Context, tr entity.Transfer) error {
			delivered = append(delivered, "first")
			return nil
		})).
		Add("broken", sinkFunc(func(_ context.Context, tr entity.Transfer) error {
			return errors.New("unavailable")
		})).
		Add("last", sinkFunc(func(_ context.Context, tr entity.Transfer) error {
			delivered = append(delivered, "last")
			return nil
		})).
		Add("nil", nil)

	assert.Equal(t, 3, f.Len())

	err := f.Submit(context.Background(), committedTransfer(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
	assert.Equal(t, []string{"first", "last"}, delivered)
	assert.Equal(t, 1, metrics["broken:error"])
	assert.Equal(t, 1, metrics["first:ok"])
}
