package session

import (
	"sync"
	"time"

	"timed-voting-backend/models"
)

// fanoutBuffer 每个订阅者的待收消息上限
const fanoutBuffer = 16

// TallySnapshot is one live-update message: the full per-option tally of a
// poll after a vote landed. Full snapshots make dropped messages self-healing,
// a subscriber that missed one still gets a correct picture from the next.
type TallySnapshot struct {
	PollID    string               `json:"poll_id"` // 对外的投票句柄
	Options   []models.OptionTally `json:"options"`
	Timestamp int64                `json:"timestamp"`
}

// Broadcaster fans tally snapshots out to any number of subscribers. A
// publish never blocks: when a subscriber's buffer is full the oldest
// buffered snapshot is dropped to make room. Closing ends every subscriber
// channel; late subscribers after close get an already-finished sequence.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[chan TallySnapshot]struct{}
	closed bool
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[chan TallySnapshot]struct{})}
}

// Subscribe registers a new subscriber and returns its channel plus a cancel
// function. Cancel is idempotent and safe to call after Close.
func (b *Broadcaster) Subscribe() (<-chan TallySnapshot, func()) {
	ch := make(chan TallySnapshot, fanoutBuffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
	}
	return ch, cancel
}

// Publish delivers a snapshot to every subscriber without ever blocking the
// caller. Slow subscribers silently lose their oldest pending snapshot.
func (b *Broadcaster) Publish(snap TallySnapshot) {
	if snap.Timestamp == 0 {
		snap.Timestamp = time.Now().UnixNano()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for ch := range b.subs {
		select {
		case ch <- snap:
		default:
			// 缓冲区已满，丢掉最旧的一条再放入最新快照
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

// Close ends all subscriptions. Subscribers see their channel close after
// draining whatever was buffered; there is no explicit close message.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}
