package transfers

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/dnsoftware/pvx-wallet/internal/dto"
	"github.com/dnsoftware/pvx-wallet/internal/entity"
)

type fakeSession struct {
	ctx    context.Context
	mu     sync.Mutex
	marked map[int32]int64
}

func newFakeSession(ctx context.Context) *fakeSession {
	return &fakeSession{ctx: ctx, marked: map[int32]int64{}}
}

func (s *fakeSession) Claims() map[string][]int32 { return nil }
func (s *fakeSession) MemberID() string { return "member" }
func (s *fakeSession) GenerationID() int32 { return 1 }
func (s *fakeSession) MarkOffset(_ string, partition int32, offset int64, _ string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marked[partition] = offset
}
func (s *fakeSession) Commit() {}
func (s *fakeSession) ResetOffset(string, int32, int64, string) {}
func (s *fakeSession) MarkMessage(*sarama.ConsumerMessage, string) {}
func (s *fakeSession) Context() context.Context { return s.ctx }

func (s *fakeSession) offset(partition int32) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.marked[partition]
}

type fakeClaim struct {
	ch chan *sarama.ConsumerMessage
}

func (c *fakeClaim) Topic() string { return "pvx-transfers" }
func (c *fakeClaim) Partition() int32 { return 0 }
func (c *fakeClaim) InitialOffset() int64 { return 0 }
func (c *fakeClaim) HighWaterMarkOffset() int64 { return 0 }
func (c *fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.ch }

type recordingPublisher struct {
	mu        sync.Mutex
	transfers []entity.Transfer
}

func (p *recordingPublisher) Submit(_ context.Context, t entity.Transfer) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.transfers = append(p.transfers, t)
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.transfers)
}

func transferMessage(t *testing.T, offset int64, hash string) *sarama.ConsumerMessage {
	t.Helper()
	tr := entity.Transfer{
		Hash:      hash,
		From:      "PVX_from",
		To:        "PVX_to",
		Amount:    decimal.NewFromInt(5),
		Status:    entity.TransferCommitted,
		CreatedAt: time.UnixMilli(1700000000000).UTC(),
	}
	raw, err := json.Marshal(dto.NewTransferMessage(tr))
	require.NoError(t, err)
	return &sarama.ConsumerMessage{Topic: "pvx-transfers", Partition: 0, Offset: offset, Value: raw}
}

func TestConsumeClaimBatches(t *testing.T) {
	publisher := &recordingPublisher{}
	consumer := NewTransferConsumer(Config{BatchSize: 2, FlushInterval: time.Hour}, nil, publisher, zaptest.NewLogger(t))

	claim := &fakeClaim{ch: make(chan *sarama.ConsumerMessage, 4)}
	claim.ch <- transferMessage(t, 10, "h1")
	claim.ch <- &sarama.ConsumerMessage{Topic: "pvx-transfers", Offset: 11, Value: []byte("{broken")}
	claim.ch <- transferMessage(t, 12, "h2")
	close(claim.ch)

	session := newFakeSession(context.Background())
	require.NoError(t, consumer.ConsumeClaim(session, claim))

	require.Equal(t, 2, publisher.count())
	assert.Equal(t, "h1", publisher.transfers[0].Hash)
	assert.Equal(t, "h2", publisher.transfers[1].Hash)
	assert.True(t, publisher.transfers[1].Amount.Equal(decimal.NewFromInt(5)))
	assert.Equal(t, int64(13), session.offset(0))
}

func TestConsumeClaimFlushByTimer(t *testing.T) {
	publisher := &recordingPublisher{}
	consumer := NewTransferConsumer(Config{BatchSize: 100, FlushInterval: 20 * time.Millisecond}, nil, publisher, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	session := newFakeSession(ctx)
	claim := &fakeClaim{ch: make(chan *sarama.ConsumerMessage)}

	done := make(chan error, 1)
	go func() { done <- consumer.ConsumeClaim(session, claim) }()

	claim.ch <- transferMessage(t, 3, "h3")
	require.Eventually(t, func() bool {
		return publisher.count() == 1 && session.offset(0) == 4
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop on session cancel")
	}
}

func TestConsumeClaimSkipsUncommitted(t *testing.T) {
	publisher := &recordingPublisher{}
	consumer := NewTransferConsumer(Config{BatchSize: 1}, nil, publisher, zaptest.NewLogger(t))

	msg := dto.NewTransferMessage(entity.Transfer{Hash: "h", Amount: decimal.NewFromInt(1), Status: entity.TransferRejected})
	raw, err := json.Marshal(msg)
	require.NoError(t, err)

	claim := &fakeClaim{ch: make(chan *sarama.ConsumerMessage, 1)}
	claim.ch <- &sarama.ConsumerMessage{Offset: 0, Value: raw}
	close(claim.ch)

	require.NoError(t, consumer.ConsumeClaim(newFakeSession(context.Background()), claim))
	assert.Equal(t, 0, publisher.count())
}
