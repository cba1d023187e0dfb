package gate

import "sync"

// AlertOnce suppresses repeated owner alerts about the same broken required
// chat. State lives for the process lifetime and resets on restart. The key
// is the chat id alone: once either failure class (bot gone, no access) has
// been reported for a chat, no further alert is sent for it.
//
// Concurrent first failures for one chat may both pass ShouldAlert before
// either calls MarkAlerted; the duplicate alert is an accepted race.
type AlertOnce struct {
	mu      sync.Mutex
	alerted map[int64]struct{}
}

func NewAlertOnce() *AlertOnce {
	return &AlertOnce{alerted: make(map[int64]struct{})}
}

func (a *AlertOnce) ShouldAlert(chatID int64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, seen := a.alerted[chatID]
	return !seen
}

func (a *AlertOnce) MarkAlerted(chatID int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerted[chatID] = struct{}{}
}
