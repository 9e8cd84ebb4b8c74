package rest

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/dnsoftware/pvx-wallet/internal/crypto"
	"github.com/dnsoftware/pvx-wallet/internal/entity"
	"github.com/dnsoftware/pvx-wallet/pkg/logger"
)

const (
	subscriberBuffer = 64
	writeWait        = 10 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = pongWait * 9 / 10
)

// TransferHub лента зафиксированных переводов для websocket-подписчиков по адресу
type TransferHub struct {
	mu     sync.RWMutex
	subs   map[string]map[*Subscription]struct{}
	logger logger.AppLogger
}

type Subscription struct {
	address string
	ch      chan entity.Transfer
}

// C канал переводов подписки
func (s *Subscription) C() <-chan entity.Transfer {
	return s.ch
}

func NewTransferHub(log logger.AppLogger) *TransferHub {
	if log == nil {
		log = zap.NewNop()
	}
	return &TransferHub{
		subs:   make(map[string]map[*Subscription]struct{}),
		logger: log,
	}
}

// Subscribe подписка на переводы адреса, вторым значением функция отписки
func (h *TransferHub) Subscribe(address string) (*Subscription, func()) {
	sub := &Subscription{address: address, ch: make(chan entity.Transfer, subscriberBuffer)}

	h.mu.Lock()
	if h.subs[address] == nil {
		h.subs[address] = make(map[*Subscription]struct{})
	}
	h.subs[address][sub] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return sub, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[address], sub)
			if len(h.subs[address]) == 0 {
				delete(h.subs, address)
			}
			h.mu.Unlock()
		})
	}
}

// Submit рассылка отправителю и получателю; медленный подписчик пропускает сообщение
func (h *TransferHub) Submit(_ context.Context, transfer entity.Transfer) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, address := range []string{transfer.From, transfer.To} {
		for sub := range h.subs[address] {
			select {
			case sub.ch <- transfer:
			default:
				h.logger.Warn("transfer feed subscriber is slow, message dropped",
					zap.String("address", address), zap.String("hash", transfer.Hash))
			}
		}
	}
	return nil
}

func (h *TransferHub) Subscribers(address string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[address])
}

// Создаем экземпляр WebSocket апгрейдера
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // лента содержит только публичные данные переводов
	},
}

func (s *Handler) transferFeed(w http.ResponseWriter, r *http.Request) {
	address := r.URL.Query().Get("address")
	if !crypto.ValidateAddress(address) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "validation error: malformed address"})
		return
	}

	// Устанавливаем WebSocket-соединение
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	sub, unsubscribe := s.hub.Subscribe(address)
	defer unsubscribe()

	// Чтение нужно только для обработки pong и закрытия соединения клиентом
	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case t := <-sub.C():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(newTransferResponse(t)); err != nil {
				s.logger.Debug("websocket write failed", zap.String("address", address), zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		case <-r.Context().Done():
			return
		}
	}
}
