package notification

import (
	"log"
	"sync"
)

// subscriberBuffer は購読者ごとの未送信通知の上限。
const subscriberBuffer = 16

// Hub は新しい通知をSSEで接続中の利用者に配る。
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[chan notificationResponse]struct{}
}

// NewHub はHubを生成する。
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan notificationResponse]struct{})}
}

// Subscribe はユーザー宛ての通知を受け取るチャネルと、購読を解除する関数を返す。
func (h *Hub) Subscribe(userID string) (<-chan notificationResponse, func()) {
	ch := make(chan notificationResponse, subscriberBuffer)

	h.mu.Lock()
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[chan notificationResponse]struct{})
	}
	h.subs[userID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[userID], ch)
			if len(h.subs[userID]) == 0 {
				delete(h.subs, userID)
			}
			h.mu.Unlock()
		})
	}
}

// Publish はユーザーの全ての購読者に通知を送る。
// 受信が追いつかない購読者への通知は捨てる（一覧APIで取得できる）。
func (h *Hub) Publish(userID string, n notificationResponse) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subs[userID] {
		select {
		case ch <- n:
		default:
			log.Printf("[Hub] 購読者の受信が追いつかないため通知を破棄しました (user_id=%s, id=%s)", userID, n.ID)
		}
	}
}

// Subscribers はユーザーの購読者数を返す。
func (h *Hub) Subscribers(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}
