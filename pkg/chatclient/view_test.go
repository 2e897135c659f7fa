package chatclient

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dm-service/internal/model"
)

const (
	testChatID = "chat-1"
	localUser  = "alice"
	peerUser   = "bob"
)

func newTestView() (*ConversationView, *time.Time) {
	view := NewConversationView(testChatID, localUser)
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	view.now = func() time.Time { return now }
	return view, &now
}

func newEvent(messageID, senderID, content string, sentAt time.Time) model.Event {
	return model.Event{
		Type:      model.EventMessageNew,
		ChatID:    testChatID,
		MessageID: messageID,
		SenderID:  senderID,
		Content:   content,
		SentAt:    &sentAt,
	}
}

func TestOptimisticSendConfirmedInPlace(t *testing.T) {
	view, now := newTestView()

	localID := view.SendOptimistic("hello")
	require.NotEmpty(t, localID)

	entries := view.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, EntryPending, entries[0].State)

	view.ApplyNew(newEvent("msg-1", localUser, "hello", now.Add(200*time.Millisecond)))

	entries = view.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, EntryConfirmed, entries[0].State)
	assert.Equal(t, "msg-1", entries[0].MessageID)
	assert.Equal(t, localID, entries[0].LocalID)
}

func TestConfirmationOutsideWindowAppends(t *testing.T) {
	view, now := newTestView()

	view.SendOptimistic("hello")
	view.ApplyNew(newEvent("msg-1", localUser, "hello", now.Add(time.Minute)))

	entries := view.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, EntryPending, entries[0].State)
	assert.Equal(t, EntryConfirmed, entries[1].State)
}

func TestDuplicateNewEventDropped(t *testing.T) {
	view, now := newTestView()

	evt := newEvent("msg-1", peerUser, "hi", *now)
	view.ApplyNew(evt)
	view.ApplyNew(evt)

	assert.Len(t, view.Entries(), 1)
}

func TestPeerMessageNeverMatchesPending(t *testing.T) {
	view, now := newTestView()

	view.SendOptimistic("hello")
	view.ApplyNew(newEvent("msg-1", peerUser, "hello", *now))

	entries := view.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, EntryPending, entries[0].State)
	assert.Equal(t, peerUser, entries[1].SenderID)
}

func TestEditThenDeleteLeavesNoEntry(t *testing.T) {
	view, now := newTestView()

	view.ApplyNew(newEvent("msg-1", peerUser, "original", *now))

	view.ApplyEdited(model.Event{
		Type:      model.EventMessageEdited,
		ChatID:    testChatID,
		MessageID: "msg-1",
		Content:   "edited",
	})
	entries := view.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "edited", entries[0].Content)
	assert.True(t, entries[0].Edited)

	view.ApplyDeleted(model.Event{
		Type:      model.EventMessageDeleted,
		ChatID:    testChatID,
		MessageID: "msg-1",
	})
	assert.Empty(t, view.Entries())
}

func TestEditAndDeleteUnknownIDAreNoOps(t *testing.T) {
	view, _ := newTestView()

	view.ApplyEdited(model.Event{Type: model.EventMessageEdited, ChatID: testChatID, MessageID: "ghost"})
	view.ApplyDeleted(model.Event{Type: model.EventMessageDeleted, ChatID: testChatID, MessageID: "ghost"})

	assert.Empty(t, view.Entries())
}

func TestEventsForOtherChatsIgnored(t *testing.T) {
	view, now := newTestView()

	other := newEvent("msg-1", peerUser, "hi", *now)
	other.ChatID = "chat-other"
	view.ApplyNew(other)

	assert.Empty(t, view.Entries())
}

func TestHistoryMergesWithLiveEvents(t *testing.T) {
	view, now := newTestView()
	base := *now

	// A live event can land before the history fetch returns.
	view.ApplyNew(newEvent("msg-3", peerUser, "newest", base.Add(2*time.Second)))

	view.LoadHistory([]Entry{
		{MessageID: "msg-1", ChatID: testChatID, SenderID: localUser, Content: "oldest", SentAt: base},
		{MessageID: "msg-2", ChatID: testChatID, SenderID: peerUser, Content: "middle", SentAt: base.Add(time.Second)},
		{MessageID: "msg-3", ChatID: testChatID, SenderID: peerUser, Content: "newest", SentAt: base.Add(2 * time.Second)},
	})

	entries := view.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "msg-1", entries[0].MessageID)
	assert.Equal(t, "msg-2", entries[1].MessageID)
	assert.Equal(t, "msg-3", entries[2].MessageID)
}

func TestPendingExpiresToFailed(t *testing.T) {
	view, now := newTestView()
	base := *now

	view.SendOptimistic("hello?")

	*now = base.Add(time.Minute)
	view.ExpirePending()

	entries := view.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, EntryFailed, entries[0].State)
}

func TestUnreadCounters(t *testing.T) {
	counters := NewUnreadCounters(localUser)
	counters.SetActive("chat-active")

	fromPeer := func(chatID string) model.Event {
		return model.Event{Type: model.EventMessageNew, ChatID: chatID, SenderID: peerUser}
	}

	counters.Observe(fromPeer("chat-other"))
	counters.Observe(fromPeer("chat-other"))
	assert.Equal(t, 2, counters.Count("chat-other"))

	// Active chat and own messages never count.
	counters.Observe(fromPeer("chat-active"))
	counters.Observe(model.Event{Type: model.EventMessageNew, ChatID: "chat-other", SenderID: localUser})
	assert.Zero(t, counters.Count("chat-active"))
	assert.Equal(t, 2, counters.Count("chat-other"))

	counters.Reset("chat-other")
	assert.Zero(t, counters.Count("chat-other"))

	// Reset is idempotent and the count never goes negative.
	counters.Reset("chat-other")
	assert.Zero(t, counters.Count("chat-other"))
}

func TestPresenceSetTracksLastSeen(t *testing.T) {
	set := NewPresenceSet()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	set.now = func() time.Time { return now }

	set.Apply(model.OnlineUsersEvent([]string{"alice", "bob"}))
	assert.True(t, set.IsOnline("alice"))
	assert.True(t, set.IsOnline("bob"))

	_, seen := set.LastSeen("bob")
	assert.False(t, seen)

	now = now.Add(time.Minute)
	set.Apply(model.OnlineUsersEvent([]string{"alice"}))
	assert.False(t, set.IsOnline("bob"))

	lastSeen, seen := set.LastSeen("bob")
	require.True(t, seen)
	assert.Equal(t, now, lastSeen)
}
