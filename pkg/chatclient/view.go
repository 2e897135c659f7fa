package chatclient

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"dm-service/internal/model"
)

// EntryState tracks an optimistic message through its lifecycle.
type EntryState int

const (
	EntryPending EntryState = iota
	EntryConfirmed
	EntryFailed
)

// Entry is one message row in a conversation view. Optimistic entries
// carry a LocalID until the confirming message:new event arrives; the
// server never echoes the local key, so confirmation is matched by
// chat, sender, content and a short time window.
type Entry struct {
	MessageID string
	LocalID   string
	ChatID    string
	SenderID  string
	Content   string
	SentAt    time.Time
	Edited    bool
	State     EntryState
}

const (
	defaultMatchWindow    = 10 * time.Second
	defaultPendingTimeout = 15 * time.Second
)

// ConversationView merges three input streams into one ordered,
// deduplicated message list: the initial history fetch, live
// message:new/edited/deleted events, and locally originated
// optimistic sends.
type ConversationView struct {
	mu sync.Mutex

	chatID    string
	localUser string

	entries     []*Entry
	byMessageID map[string]*Entry

	matchWindow    time.Duration
	pendingTimeout time.Duration
	now            func() time.Time
}

func NewConversationView(chatID, localUser string) *ConversationView {
	return &ConversationView{
		chatID:         chatID,
		localUser:      localUser,
		byMessageID:    make(map[string]*Entry),
		matchWindow:    defaultMatchWindow,
		pendingTimeout: defaultPendingTimeout,
		now:            time.Now,
	}
}

// LoadHistory seeds the view from the one-time history fetch, ascending
// by send time. Entries already present by message id are skipped so a
// live event racing the fetch does not duplicate.
func (v *ConversationView) LoadHistory(history []Entry) {
	v.mu.Lock()
	defer v.mu.Unlock()

	for i := range history {
		h := history[i]
		if h.MessageID == "" {
			continue
		}
		if _, seen := v.byMessageID[h.MessageID]; seen {
			continue
		}
		h.State = EntryConfirmed
		e := &h
		v.entries = append(v.entries, e)
		v.byMessageID[h.MessageID] = e
	}
	v.sortLocked()
}

// SendOptimistic appends a provisional entry for a locally sent message
// and returns its local key.
func (v *ConversationView) SendOptimistic(content string) string {
	v.mu.Lock()
	defer v.mu.Unlock()

	e := &Entry{
		LocalID:  uuid.NewString(),
		ChatID:   v.chatID,
		SenderID: v.localUser,
		Content:  content,
		SentAt:   v.now(),
		State:    EntryPending,
	}
	v.entries = append(v.entries, e)
	return e.LocalID
}

// ApplyNew merges a message:new event. A known message id is a
// duplicate and is dropped. An event matching a pending optimistic
// entry confirms it in place, preserving its position; anything else
// appends.
func (v *ConversationView) ApplyNew(evt model.Event) {
	if evt.ChatID != v.chatID || evt.MessageID == "" {
		return
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if _, seen := v.byMessageID[evt.MessageID]; seen {
		return
	}

	sentAt := v.now()
	if evt.SentAt != nil {
		sentAt = *evt.SentAt
	}

	if evt.SenderID == v.localUser {
		if e := v.matchPendingLocked(evt.Content, sentAt); e != nil {
			e.MessageID = evt.MessageID
			e.SentAt = sentAt
			e.State = EntryConfirmed
			v.byMessageID[evt.MessageID] = e
			return
		}
	}

	e := &Entry{
		MessageID: evt.MessageID,
		ChatID:    evt.ChatID,
		SenderID:  evt.SenderID,
		Content:   evt.Content,
		SentAt:    sentAt,
		State:     EntryConfirmed,
	}
	v.entries = append(v.entries, e)
	v.byMessageID[evt.MessageID] = e
}

// ApplyEdited updates content and the edited flag by message id. An
// unknown id is a no-op: the event belongs to a chat view that will
// refetch history when reopened.
func (v *ConversationView) ApplyEdited(evt model.Event) {
	if evt.ChatID != v.chatID {
		return
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	e, ok := v.byMessageID[evt.MessageID]
	if !ok {
		return
	}
	e.Content = evt.Content
	e.Edited = true
}

// ApplyDeleted removes the entry by message id; unknown ids are no-ops.
func (v *ConversationView) ApplyDeleted(evt model.Event) {
	if evt.ChatID != v.chatID {
		return
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	e, ok := v.byMessageID[evt.MessageID]
	if !ok {
		return
	}
	delete(v.byMessageID, evt.MessageID)
	for i, cur := range v.entries {
		if cur == e {
			v.entries = append(v.entries[:i], v.entries[i+1:]...)
			break
		}
	}
}

// ExpirePending marks optimistic entries that never got a confirming
// event as failed. Failed entries stay visible so the user can resend
// through the normal send path.
func (v *ConversationView) ExpirePending() {
	v.mu.Lock()
	defer v.mu.Unlock()

	cutoff := v.now().Add(-v.pendingTimeout)
	for _, e := range v.entries {
		if e.State == EntryPending && e.SentAt.Before(cutoff) {
			e.State = EntryFailed
		}
	}
}

// Entries returns a snapshot of the current view, ordered by send time.
func (v *ConversationView) Entries() []Entry {
	v.mu.Lock()
	defer v.mu.Unlock()

	out := make([]Entry, len(v.entries))
	for i, e := range v.entries {
		out[i] = *e
	}
	return out
}

func (v *ConversationView) matchPendingLocked(content string, sentAt time.Time) *Entry {
	for _, e := range v.entries {
		if e.State != EntryPending || e.Content != content {
			continue
		}
		d := sentAt.Sub(e.SentAt)
		if d < 0 {
			d = -d
		}
		if d <= v.matchWindow {
			return e
		}
	}
	return nil
}

func (v *ConversationView) sortLocked() {
	// History arrives ascending; insertion sort keeps the common case
	// cheap when a live event landed first.
	for i := 1; i < len(v.entries); i++ {
		for j := i; j > 0 && v.entries[j].SentAt.Before(v.entries[j-1].SentAt); j-- {
			v.entries[j], v.entries[j-1] = v.entries[j-1], v.entries[j]
		}
	}
}

// UnreadCounters keeps one O(1) counter per conversation. Events for
// the active conversation or from the local user never count.
type UnreadCounters struct {
	mu        sync.Mutex
	localUser string
	active    string
	counts    map[string]int
}

func NewUnreadCounters(localUser string) *UnreadCounters {
	return &UnreadCounters{
		localUser: localUser,
		counts:    make(map[string]int),
	}
}

// SetActive marks a conversation as the open one. It does not reset
// the counter; Reset is called once the read acknowledgement completes.
func (u *UnreadCounters) SetActive(chatID string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.active = chatID
}

// Observe bumps the counter for a message:new event in an inactive
// conversation from the peer.
func (u *UnreadCounters) Observe(evt model.Event) {
	if evt.Type != model.EventMessageNew {
		return
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	if evt.ChatID == u.active || evt.SenderID == u.localUser {
		return
	}
	u.counts[evt.ChatID]++
}

// Reset zeroes a conversation's counter. Idempotent: repeated resets
// of an already-zero counter are no-ops, and the count never goes
// negative.
func (u *UnreadCounters) Reset(chatID string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	delete(u.counts, chatID)
}

func (u *UnreadCounters) Count(chatID string) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.counts[chatID]
}

// PresenceSet tracks the online set from onlineUsers broadcasts and
// records a last-seen timestamp when a user drops out of it.
type PresenceSet struct {
	mu       sync.Mutex
	online   map[string]struct{}
	lastSeen map[string]time.Time
	now      func() time.Time
}

func NewPresenceSet() *PresenceSet {
	return &PresenceSet{
		online:   make(map[string]struct{}),
		lastSeen: make(map[string]time.Time),
		now:      time.Now,
	}
}

// Apply replaces the online set from a full-set broadcast. Each
// broadcast is authoritative; nothing is inferred between broadcasts.
func (p *PresenceSet) Apply(evt model.Event) {
	if evt.Type != model.EventOnlineUsers {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	next := make(map[string]struct{}, len(evt.UserIDs))
	for _, id := range evt.UserIDs {
		next[id] = struct{}{}
	}
	now := p.now()
	for id := range p.online {
		if _, still := next[id]; !still {
			p.lastSeen[id] = now
		}
	}
	p.online = next
}

func (p *PresenceSet) IsOnline(userID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.online[userID]
	return ok
}

// LastSeen returns when a user was last observed leaving the online
// set. The zero time means they were never seen going offline.
func (p *PresenceSet) LastSeen(userID string) (time.Time, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.lastSeen[userID]
	return t, ok
}
