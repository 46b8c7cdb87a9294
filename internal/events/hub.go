// Package events: шина событий голосования.
//
// Hub реализует Sink: раздаёт события подписчикам процесса (SSE-клиентам)
// без блокировки публикующего, хранит хвост истории для переподключений
// (Last-Event-ID) и, если задан Redis, дублирует события в Redis-список
// и Pub/Sub-канал, чтобы их видели другие инстансы и внешние потребители.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// Топики событий
const (
	TopicVote          = "project.vote"
	TopicStatusChanged = "project.status_changed"
	TopicAlertCreated  = "alert.created"
)

const (
	redisHistoryKey = "curator:events"
	redisSeqKey     = "curator:events:seq"
	redisChannel    = "curator:events:"
	redisTimeout    = time.Second
	subscriberBuf   = 64
)

// Sink принимает события. Реализация не должна блокировать вызывающего
// и не возвращает ошибок, доставка событий best-effort.
type Sink interface {
	Publish(topic string, payload interface{})
}

// Event: одно событие шины.
type Event struct {
	ID    int64           `json:"id"`
	Topic string          `json:"topic"`
	Data  json.RawMessage `json:"data"`
	At    time.Time       `json:"at"`
}

type subscriber struct {
	topic string // пусто = все топики
	ch    chan Event
}

// Hub: реализация Sink.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[*subscriber]struct{}

	histMu  sync.Mutex
	history []Event
	seq     int64

	rdb        redis.UniversalClient
	replaySize int64
}

// NewHub создаёт шину. rdb может быть nil.
func NewHub(rdb redis.UniversalClient, replaySize int64) *Hub {
	if replaySize <= 0 {
		replaySize = 200
	}
	return &Hub{
		subscribers: make(map[*subscriber]struct{}),
		rdb:         rdb,
		replaySize:  replaySize,
	}
}

// Subscribe подписывает на топик (пусто = все). Второе значение: отписка.
func (h *Hub) Subscribe(topic string) (<-chan Event, func()) {
	sub := &subscriber{topic: topic, ch: make(chan Event, subscriberBuf)}

	h.mu.Lock()
	h.subscribers[sub] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subscribers, sub)
			close(sub.ch)
			h.mu.Unlock()
		})
	}
	return sub.ch, unsub
}

// Publish сериализует payload и раздаёт событие.
func (h *Hub) Publish(topic string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.WithError(err).WithField("topic", topic).Error("Событие не сериализуется")
		return
	}

	ev := Event{Topic: topic, Data: data, At: time.Now().UTC()}
	ev.ID = h.nextID()
	h.remember(ev)
	h.mirror(ev)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subscribers {
		if sub.topic != "" && sub.topic != topic {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			log.WithFields(log.Fields{"topic": topic, "event_id": ev.ID}).Warn("Подписчик не успевает, событие пропущено")
		}
	}
}

// Replay возвращает события с ID > afterID (в пределах хранимой истории).
func (h *Hub) Replay(ctx context.Context, topic string, afterID int64) ([]Event, error) {
	var all []Event
	if h.rdb != nil {
		items, err := h.rdb.LRange(ctx, redisHistoryKey, 0, -1).Result()
		if err != nil {
			return nil, fmt.Errorf("ошибка чтения истории событий: %w", err)
		}
		for _, item := range items {
			var ev Event
			if err := json.Unmarshal([]byte(item), &ev); err != nil {
				continue
			}
			all = append(all, ev)
		}
	} else {
		h.histMu.Lock()
		all = append(all, h.history...)
		h.histMu.Unlock()
	}

	out := make([]Event, 0, len(all))
	for _, ev := range all {
		if ev.ID > afterID && (topic == "" || ev.Topic == topic) {
			out = append(out, ev)
		}
	}
	return out, nil
}

// nextID выдаёт номер события: общий счётчик в Redis, иначе локальный.
func (h *Hub) nextID() int64 {
	if h.rdb != nil {
		ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
		defer cancel()
		id, err := h.rdb.Incr(ctx, redisSeqKey).Result()
		if err == nil {
			return id
		}
		log.WithError(err).Warn("Redis недоступен, номер события локальный")
	}
	h.histMu.Lock()
	defer h.histMu.Unlock()
	h.seq++
	return h.seq
}

func (h *Hub) remember(ev Event) {
	if h.rdb != nil {
		return
	}
	h.histMu.Lock()
	defer h.histMu.Unlock()
	h.history = append(h.history, ev)
	if over := int64(len(h.history)) - h.replaySize; over > 0 {
		h.history = append([]Event(nil), h.history[over:]...)
	}
}

// mirror дублирует событие в Redis: список истории и Pub/Sub-канал топика.
func (h *Hub) mirror(ev Event) {
	if h.rdb == nil {
		return
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()

	pipe := h.rdb.TxPipeline()
	pipe.RPush(ctx, redisHistoryKey, raw)
	pipe.LTrim(ctx, redisHistoryKey, -h.replaySize, -1)
	pipe.Publish(ctx, redisChannel+ev.Topic, raw)
	if _, err := pipe.Exec(ctx); err != nil {
		log.WithError(err).WithField("topic", ev.Topic).Warn("Не удалось отправить событие в Redis")
	}
}
