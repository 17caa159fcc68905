package manager

import (
	"github.com/magicianjarden/audiio-official-sub003/internal/models"
)

// defaultEventBuffer is the channel depth handed to subscribers that do not
// ask for one.
const defaultEventBuffer = 64

// Subscribe registers a progress listener and returns its token plus the
// receiving channel. Delivery is fire-and-forget: a subscriber whose buffer
// is full loses events rather than slowing a transfer down.
func (m *DownloadManager) Subscribe(buffer int) (uint64, <-chan models.DownloadProgressEvent) {
	if buffer <= 0 {
		buffer = defaultEventBuffer
	}
	ch := make(chan models.DownloadProgressEvent, buffer)

	m.subMu.Lock()
	m.nextSubID++
	token := m.nextSubID
	m.subscribers[token] = ch
	m.subMu.Unlock()

	return token, ch
}

// Unsubscribe removes a listener and closes its channel. Unknown tokens are
// ignored.
func (m *DownloadManager) Unsubscribe(token uint64) {
	m.subMu.Lock()
	ch, ok := m.subscribers[token]
	delete(m.subscribers, token)
	m.subMu.Unlock()

	if ok {
		close(ch)
	}
}

// emit fans one event out to every subscriber without blocking.
func (m *DownloadManager) emit(event models.DownloadProgressEvent) {
	m.subMu.RLock()
	defer m.subMu.RUnlock()

	for _, ch := range m.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}
