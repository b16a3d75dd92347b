package hub

import "sync"

// FrameBus distributes JPEG frames to MJPEG stream viewers. Each
// subscriber gets a buffered channel; when a viewer falls behind, the
// stale frame is replaced with the newest one instead of queueing, so
// the stream stays live at whatever rate the viewer can sustain.
type FrameBus struct {
	mu   sync.Mutex
	subs map[chan []byte]struct{}
}

// NewFrameBus creates an empty bus.
func NewFrameBus() *FrameBus {
	return &FrameBus{subs: make(map[chan []byte]struct{})}
}

// Subscribe returns a frame channel and its cancel function. The
// channel is closed on cancel.
func (b *FrameBus) Subscribe() (<-chan []byte, func()) {
	ch := make(chan []byte, 1)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Publish hands a frame to every subscriber, replacing any undelivered
// previous frame. Never blocks.
func (b *FrameBus) Publish(jpeg []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- jpeg:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- jpeg:
			default:
			}
		}
	}
}

// Subscribers returns the current viewer count.
func (b *FrameBus) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
