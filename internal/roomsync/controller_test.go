package roomsync

import (
	"context"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/wirechat-client/internal/connectivity"
	"github.com/vovakirdan/wirechat-client/internal/core"
	"github.com/vovakirdan/wirechat-client/internal/metrics"
	"github.com/vovakirdan/wirechat-client/internal/proto"
	"github.com/vovakirdan/wirechat-client/internal/roomlist"
)

func TestInitialLoad(t *testing.T) {
	h := newHarness(t)
	seeded := h.srv.Seed("r1", "u2", "one", "two", "three", "four", "five")

	h.open("r1")

	msgs := h.ctrl.Messages("r1")
	assert.Equal(t, []string{seeded[2].ID, seeded[3].ID, seeded[4].ID}, ids(msgs))
	st := h.ctrl.Pagination("r1")
	assert.True(t, st.HasMore)
	assert.NotEmpty(t, st.Cursor)
	assert.Equal(t, "r1", h.ctrl.ActiveRoom())
	assert.Equal(t, 1, h.srv.Calls("check_membership"))
}

func TestDirectoryMemberSkipsMembershipCheck(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.ctrl.RefreshRooms(context.Background()))

	h.open("r1")
	assert.Equal(t, 0, h.srv.Calls("check_membership"))
	h.waitFor(func() bool { return h.srv.Calls("mark_read") == 1 })
}

func TestLoadMorePrependsWithAnchor(t *testing.T) {
	h := newHarness(t)
	seeded := h.srv.Seed("r1", "u2", "one", "two", "three", "four", "five")
	h.open("r1")

	require.NoError(t, h.ctrl.LoadMore(context.Background()))
	ev := h.mustKind(core.EventPagePrepended, "r1")
	assert.Equal(t, seeded[2].ID, ev.Anchor)

	msgs := h.ctrl.Messages("r1")
	assert.Equal(t, []string{"one", "two", "three", "four", "five"}, contents(msgs))
	assert.False(t, h.ctrl.Pagination("r1").HasMore)

	assert.ErrorIs(t, h.ctrl.LoadMore(context.Background()), core.ErrNoMoreHistory)
}

func TestLoadMoreDroppedWhileInFlight(t *testing.T) {
	h := newHarness(t)
	h.srv.Seed("r1", "u2", "1", "2", "3", "4", "5", "6", "7")
	h.open("r1")

	release := h.srv.Block("fetch_messages")
	require.NoError(t, h.ctrl.LoadMore(context.Background()))
	assert.True(t, h.ctrl.LoadingMore("r1"))
	require.NoError(t, h.ctrl.LoadMore(context.Background()))
	release()

	h.mustKind(core.EventPagePrepended, "r1")
	assert.Equal(t, 2, h.srv.Calls("fetch_messages"))
	assert.Len(t, h.ctrl.Messages("r1"), 6)
}

func TestReentryRefreshesNewestPage(t *testing.T) {
	h := newHarness(t)
	seeded := h.srv.Seed("r1", "u2", "one", "two", "three", "four", "five")
	h.open("r1")
	require.NoError(t, h.ctrl.LoadMore(context.Background()))
	h.mustKind(core.EventPagePrepended, "r1")
	require.False(t, h.ctrl.Pagination("r1").HasMore)

	h.open("r2")
	require.True(t, h.srv.Rewrite(seeded[4].ID, "five, edited"))
	h.srv.Seed("r1", "u2", "six")

	h.open("r1")
	assert.Equal(t, []string{"one", "two", "three", "four", "five, edited", "six"}, contents(h.ctrl.Messages("r1")))
	assert.False(t, h.ctrl.Pagination("r1").HasMore)

	assert.ErrorIs(t, h.ctrl.LoadMore(context.Background()), core.ErrNoMoreHistory)
	assert.Equal(t, 4, h.srv.Calls("fetch_messages"))
}

func TestReentryAfterGapDropsOldHistory(t *testing.T) {
	h := newHarness(t)
	h.srv.Seed("r1", "u2", "one", "two")
	h.open("r1")

	h.open("r2")
	h.srv.Seed("r1", "u2", "three", "four", "five", "six")

	h.open("r1")
	assert.Equal(t, []string{"four", "five", "six"}, contents(h.ctrl.Messages("r1")))
	st := h.ctrl.Pagination("r1")
	assert.True(t, st.HasMore)
	assert.NotEmpty(t, st.Cursor)

	require.NoError(t, h.ctrl.LoadMore(context.Background()))
	h.mustKind(core.EventPagePrepended, "r1")
	assert.Equal(t, []string{"one", "two", "three", "four", "five", "six"}, contents(h.ctrl.Messages("r1")))
}

func TestLiveAndFetchRace(t *testing.T) {
	h := newHarness(t)
	h.srv.Seed("r1", "u2", "a")

	release := h.srv.Block("fetch_messages")
	require.NoError(t, h.ctrl.SwitchRoom("r1"))
	h.waitFor(func() bool { return h.srv.Calls("fetch_messages") == 1 })
	h.waitFor(func() bool { return slices.Contains(h.srv.Joined("r1"), "u1") })

	live := h.srv.Deliver("r1", "u2", "b")
	h.mustKind(core.EventMessagesChanged, "r1")
	assert.Equal(t, []string{live.ID}, ids(h.ctrl.Messages("r1")))

	release()
	h.mustState("r1", core.StateLoaded)

	msgs := h.ctrl.Messages("r1")
	assert.Equal(t, []string{"a", "b"}, contents(msgs))
}

func TestStaleFetchIgnoredAfterSwitch(t *testing.T) {
	h := newHarness(t)
	h.srv.Seed("r1", "u2", "in r1")
	h.srv.Seed("r2", "u2", "in r2")

	release := h.srv.Block("fetch_messages")
	require.NoError(t, h.ctrl.SwitchRoom("r1"))
	h.waitFor(func() bool { return h.srv.Calls("fetch_messages") == 1 })

	require.NoError(t, h.ctrl.SwitchRoom("r2"))
	h.waitFor(func() bool { return h.srv.Calls("fetch_messages") == 2 })
	release()

	h.mustState("r2", core.StateLoaded)
	assert.Empty(t, h.ctrl.Messages("r1"))
	assert.Equal(t, core.StateUnloaded, h.ctrl.RoomState("r1"))
	assert.Equal(t, []string{"in r2"}, contents(h.ctrl.Messages("r2")))
	h.waitFor(func() bool { return len(h.srv.Frames(proto.EventLeaveRoom)) == 1 })
}

func TestSwitchDebounceCoalesces(t *testing.T) {
	h := newHarness(t, withDebounce(100*time.Millisecond))

	require.NoError(t, h.ctrl.SwitchRoom("r1"))
	require.NoError(t, h.ctrl.SwitchRoom("r2"))
	h.mustState("r2", core.StateLoaded)

	assert.Equal(t, 1, h.srv.Calls("fetch_messages"))
	assert.Equal(t, core.StateUnloaded, h.ctrl.RoomState("r1"))
}

func TestSendReconciles(t *testing.T) {
	h := newHarness(t)
	h.open("r1")

	release := h.srv.Block("send_message")
	require.NoError(t, h.ctrl.SendMessage(context.Background(), "hi", nil))

	pending := h.ctrl.Messages("r1")
	require.Len(t, pending, 1)
	assert.True(t, strings.HasPrefix(pending[0].ID, core.TempIDPrefix))
	assert.True(t, pending[0].Pending)
	assert.True(t, h.ctrl.Sending("r1"))

	release()
	ev := h.mustKind(core.EventSendConfirmed, "r1")

	msgs := h.ctrl.Messages("r1")
	require.Len(t, msgs, 1)
	assert.Equal(t, ev.Message.ID, msgs[0].ID)
	assert.True(t, strings.HasPrefix(msgs[0].ID, "srv-"))
	assert.False(t, msgs[0].Pending)
	assert.False(t, h.ctrl.Sending("r1"))

	h.waitFor(func() bool { return len(h.srv.Frames(proto.EventSendMessage)) == 1 })
	room, ok := h.ctrl.Room("r1")
	require.True(t, ok)
	assert.Equal(t, "You: hi", room.LastMessage)
}

func TestSendValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	assert.ErrorIs(t, h.ctrl.SendMessage(ctx, "hi", nil), core.ErrNoActiveRoom)

	h.open("r1")
	assert.ErrorIs(t, h.ctrl.SendMessage(ctx, "   ", nil), core.ErrEmptyMessage)

	release := h.srv.Block("send_message")
	require.NoError(t, h.ctrl.SendMessage(ctx, "first", nil))
	assert.ErrorIs(t, h.ctrl.SendMessage(ctx, "second", nil), core.ErrSendInFlight)
	release()

	h.mustKind(core.EventSendConfirmed, "r1")
	assert.Equal(t, []string{"first"}, contents(h.ctrl.Messages("r1")))
	assert.Equal(t, 1, h.srv.Calls("send_message"))
}

func TestSendFailureRollsBack(t *testing.T) {
	h := newHarness(t)
	h.open("r1")

	h.srv.Fail("send_message", 500, 1)
	require.NoError(t, h.ctrl.SendMessage(context.Background(), "oops", nil))

	ev := h.mustKind(core.EventSendFailed, "r1")
	assert.Equal(t, "oops", ev.Draft)
	assert.Equal(t, core.KindNetworkFailure, ev.Error.Kind)
	assert.Empty(t, h.ctrl.Messages("r1"))
	assert.Equal(t, "oops", h.ctrl.Draft("r1"))
	assert.False(t, h.ctrl.Sending("r1"))
}

func TestSendWithReply(t *testing.T) {
	h := newHarness(t)
	seeded := h.srv.Seed("r1", "u2", "question")
	h.open("r1")

	quoted := h.ctrl.Messages("r1")[0]
	require.NoError(t, h.ctrl.SendMessage(context.Background(), "answer", &quoted))
	h.mustKind(core.EventSendConfirmed, "r1")

	msgs := h.ctrl.Messages("r1")
	require.Len(t, msgs, 2)
	require.NotNil(t, msgs[1].ReplyTo)
	assert.Equal(t, seeded[0].ID, msgs[1].ReplyTo.ID)
}

func TestSendAttachment(t *testing.T) {
	h := newHarness(t)
	h.open("r1")

	png := []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0x0D, 0x49, 0x48, 0x44, 0x52}
	require.NoError(t, h.ctrl.SendAttachment(context.Background(), "cat.png", strings.NewReader(string(png)), ""))
	ev := h.mustKind(core.EventSendConfirmed, "r1")

	require.NotNil(t, ev.Message.Attachment)
	assert.Equal(t, core.AttachmentImage, ev.Message.Attachment.Kind)
	assert.Equal(t, "cat.png", ev.Message.Attachment.Name)
}

func TestAttachmentHoldsSendSlotDuringUpload(t *testing.T) {
	h := newHarness(t)
	h.open("r1")
	ctx := context.Background()
	png := []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0x0D, 0x49, 0x48, 0x44, 0x52}

	release := h.srv.Block("upload")
	done := make(chan error, 1)
	go func() {
		done <- h.ctrl.SendAttachment(ctx, "a.png", strings.NewReader(string(png)), "")
	}()
	h.waitFor(func() bool { return h.srv.Calls("upload") == 1 })

	assert.True(t, h.ctrl.Sending("r1"))
	assert.ErrorIs(t, h.ctrl.SendAttachment(ctx, "b.png", strings.NewReader(string(png)), ""), core.ErrSendInFlight)
	assert.ErrorIs(t, h.ctrl.SendMessage(ctx, "text", nil), core.ErrSendInFlight)
	assert.Equal(t, 1, h.srv.Calls("upload"))

	release()
	require.NoError(t, <-done)
	ev := h.mustKind(core.EventSendConfirmed, "r1")
	require.NotNil(t, ev.Message.Attachment)
	assert.Equal(t, "a.png", ev.Message.Attachment.Name)
	assert.Equal(t, 1, h.srv.Calls("send_message"))
}

func TestFailedUploadReleasesSendSlot(t *testing.T) {
	h := newHarness(t)
	h.open("r1")
	ctx := context.Background()

	h.srv.Fail("upload", 500, 1)
	err := h.ctrl.SendAttachment(ctx, "a.txt", strings.NewReader("hello"), "")
	assert.True(t, core.IsKind(err, core.KindNetworkFailure))

	h.waitFor(func() bool { return !h.ctrl.Sending("r1") })
	require.NoError(t, h.ctrl.SendMessage(ctx, "after", nil))
	h.mustKind(core.EventSendConfirmed, "r1")
	assert.Equal(t, 1, h.srv.Calls("send_message"))
}

func TestEditOwnMessage(t *testing.T) {
	h := newHarness(t)
	seeded := h.srv.Seed("r1", "u1", "typo")
	h.open("r1")

	require.NoError(t, h.ctrl.EditMessage(context.Background(), seeded[0].ID, "fixed"))
	h.mustKind(core.EventMessagesChanged, "r1")

	msgs := h.ctrl.Messages("r1")
	require.Equal(t, []string{"fixed"}, contents(msgs))
	assert.False(t, msgs[0].EditedAt.IsZero())

	h.waitFor(func() bool { return len(h.srv.Frames(proto.EventSendMessage)) == 1 })
	var data proto.SendMessageData
	require.NoError(t, h.srv.Frames(proto.EventSendMessage)[0].Decode(&data))
	assert.True(t, data.Message.IsEdit)
	assert.Equal(t, seeded[0].ID, data.Message.ID)
}

func TestEditForbiddenChangesNothing(t *testing.T) {
	m := metrics.New()
	h := newHarness(t, withMetrics(m))
	seeded := h.srv.Seed("r1", "u2", "bob's")
	h.open("r1")

	require.NoError(t, h.ctrl.EditMessage(context.Background(), seeded[0].ID, "hijack"))
	ev := h.mustEvent(func(ev core.Event) bool { return ev.Kind == core.EventNotice })
	assert.Equal(t, "You can only edit your own messages", ev.Notice)
	assert.Equal(t, core.NoticeError, ev.Level)
	assert.Equal(t, []string{"bob's"}, contents(h.ctrl.Messages("r1")))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.WriteFailures.WithLabelValues("edit_message", string(core.KindForbidden))))
	assert.Equal(t, 0, testutil.CollectAndCount(m.FetchFailures))
}

func TestDeleteForbiddenChangesNothing(t *testing.T) {
	h := newHarness(t)
	seeded := h.srv.Seed("r1", "u2", "bob's")
	h.open("r1")

	require.NoError(t, h.ctrl.DeleteMessage(context.Background(), seeded[0].ID))
	ev := h.mustEvent(func(ev core.Event) bool { return ev.Kind == core.EventNotice })
	assert.Equal(t, "You can only delete your own messages", ev.Notice)
	assert.Len(t, h.ctrl.Messages("r1"), 1)
}

func TestDuplicateDelete(t *testing.T) {
	h := newHarness(t)
	seeded := h.srv.Seed("r1", "u1", "a", "b")
	h.open("r1")

	require.NoError(t, h.ctrl.DeleteMessage(context.Background(), seeded[0].ID))
	h.mustKind(core.EventMessagesChanged, "r1")
	require.Equal(t, []string{"b"}, contents(h.ctrl.Messages("r1")))
	h.waitFor(func() bool { return len(h.srv.Frames(proto.EventDeleteMessage)) == 1 })

	h.srv.Push("r1", proto.EventMessageDeleted, proto.DeleteMessageData{MessageID: seeded[0].ID, ChatID: "r1"})
	h.srv.Push("r1", proto.EventMessageDeleted, proto.DeleteMessageData{MessageID: seeded[1].ID, ChatID: "r1"})
	h.waitFor(func() bool { return len(h.ctrl.Messages("r1")) == 0 })
}

func TestLiveEditEcho(t *testing.T) {
	h := newHarness(t)
	seeded := h.srv.Seed("r1", "u2", "before")
	h.open("r1")

	edited := seeded[0]
	edited.Content = "after"
	edited.IsEdit = true
	h.srv.Push("r1", proto.EventReceiveMessage, edited)

	h.mustKind(core.EventMessagesChanged, "r1")
	assert.Equal(t, []string{"after"}, contents(h.ctrl.Messages("r1")))
}

func TestRetryAfterFailedInitialFetch(t *testing.T) {
	h := newHarness(t)
	h.srv.Seed("r1", "u2", "a")
	h.srv.Fail("fetch_messages", 503, 1)

	require.NoError(t, h.ctrl.SwitchRoom("r1"))
	h.mustState("r1", core.StateError)
	ev := h.mustEvent(func(ev core.Event) bool { return ev.Kind == core.EventNotice })
	assert.Equal(t, core.KindNetworkFailure, ev.Error.Kind)

	require.NoError(t, h.ctrl.Retry(context.Background()))
	h.mustState("r1", core.StateLoaded)
	assert.Equal(t, []string{"a"}, contents(h.ctrl.Messages("r1")))
}

func TestRetryAfterFailedPage(t *testing.T) {
	h := newHarness(t)
	h.srv.Seed("r1", "u2", "1", "2", "3", "4")
	h.open("r1")

	h.srv.Fail("fetch_messages", 500, 1)
	require.NoError(t, h.ctrl.LoadMore(context.Background()))
	h.mustState("r1", core.StateError)
	assert.Len(t, h.ctrl.Messages("r1"), 3)

	require.NoError(t, h.ctrl.Retry(context.Background()))
	h.mustKind(core.EventPagePrepended, "r1")
	assert.Len(t, h.ctrl.Messages("r1"), 4)
}

func TestGatewayErrorSurfacesAsNetworkFailure(t *testing.T) {
	h := newHarness(t)
	h.srv.FailWith("fetch_messages", 502, 1, "bad gateway")

	require.NoError(t, h.ctrl.SwitchRoom("r1"))
	ev := h.mustEvent(func(ev core.Event) bool { return ev.Kind == core.EventNotice })
	assert.Equal(t, "Network error, please try again", ev.Notice)
}

func TestMissingRoomRedirects(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.ctrl.SwitchRoom("gone"))
	ev := h.mustKind(core.EventRedirect, "gone")
	assert.Equal(t, core.KindNotFound, ev.Error.Kind)
	assert.Empty(t, h.ctrl.ActiveRoom())
}

func TestPendingMembershipWaitsForApproval(t *testing.T) {
	h := newHarness(t)
	h.srv.AddRoom("r3", "private", "u2")
	h.srv.SetMembership("r3", "u1", core.MembershipPending)

	require.NoError(t, h.ctrl.SwitchRoom("r3"))
	h.mustKind(core.EventWaitingApproval, "r3")
	assert.Equal(t, 0, h.srv.Calls("fetch_messages"))

	h.srv.Seed("r3", "u2", "welcome")
	h.srv.Approve("r3", "u1")
	h.mustKind(core.EventJoinApproved, "r3")
	h.mustState("r3", core.StateLoaded)

	room, ok := h.ctrl.Room("r3")
	require.True(t, ok)
	assert.Equal(t, core.MembershipMember, room.Membership)
	assert.Equal(t, []string{"welcome"}, contents(h.ctrl.Messages("r3")))
}

func TestNonMemberMustJoin(t *testing.T) {
	h := newHarness(t)
	h.srv.AddRoom("r3", "private", "u2")

	require.NoError(t, h.ctrl.SwitchRoom("r3"))
	h.mustKind(core.EventJoinRequired, "r3")

	require.NoError(t, h.ctrl.RequestJoin(context.Background(), "r3"))
	h.mustKind(core.EventWaitingApproval, "r3")
	assert.Equal(t, core.MembershipPending, h.srv.Membership("r3", "u1"))

	require.NoError(t, h.ctrl.RequestJoin(context.Background(), "r3"))
	ev := h.mustEvent(func(ev core.Event) bool { return ev.Kind == core.EventNotice && ev.Error != nil })
	assert.Equal(t, core.NoticeInfo, ev.Level)
	assert.Equal(t, core.KindConflict, ev.Error.Kind)

	h.srv.Reject("r3", "u1")
	h.mustKind(core.EventJoinRejected, "r3")
	_, ok := h.ctrl.Room("r3")
	assert.False(t, ok)
}

func TestJoinViaLink(t *testing.T) {
	h := newHarness(t)
	h.srv.AddRoom("r3", "private", "u2")

	require.NoError(t, h.ctrl.JoinViaLink(context.Background(), "r3"))
	h.mustKind(core.EventWaitingApproval, "r3")
	assert.Equal(t, core.MembershipPending, h.srv.Membership("r3", "u1"))

	require.NoError(t, h.ctrl.JoinViaLink(context.Background(), "r1"))
	h.mustState("r1", core.StateLoaded)
	assert.Equal(t, "r1", h.ctrl.ActiveRoom())
}

func TestRefreshRoomsReadStatus(t *testing.T) {
	h := newHarness(t)
	h.srv.SetUnread("r2", "u1", true)

	require.NoError(t, h.ctrl.RefreshRooms(context.Background()))
	unread := h.ctrl.Rooms(roomlist.Filter{UnreadOnly: true})
	require.Len(t, unread, 1)
	assert.Equal(t, "r2", unread[0].ID)
	assert.Len(t, h.ctrl.Rooms(roomlist.Filter{}), 2)
	assert.Equal(t, 2, h.srv.Calls("read_status"))
}

func TestOtherRoomMessageMarksUnread(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.ctrl.RefreshRooms(context.Background()))
	h.open("r1")

	msg := h.srv.Seed("r2", "u2", "psst")[0]
	h.srv.PushUser("u1", proto.EventReceiveMessage, msg)

	h.waitFor(func() bool {
		r, _ := h.ctrl.Room("r2")
		return r.Unread
	})
	r2, _ := h.ctrl.Room("r2")
	assert.Equal(t, "psst", r2.LastMessage)
	assert.Empty(t, h.ctrl.Messages("r2"))
}

func TestCreateAndDeleteRoom(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	room, err := h.ctrl.CreateRoom(ctx, core.NewRoomRequest{Name: "mine"})
	require.NoError(t, err)
	_, ok := h.ctrl.Room(room.ID)
	assert.True(t, ok)

	h.open(room.ID)
	require.NoError(t, h.ctrl.DeleteRoom(ctx, room.ID))
	h.mustKind(core.EventRedirect, room.ID)
	assert.Empty(t, h.ctrl.ActiveRoom())
	_, ok = h.ctrl.Room(room.ID)
	assert.False(t, ok)

	err = h.ctrl.DeleteRoom(ctx, "r1")
	assert.True(t, core.IsKind(err, core.KindForbidden))
}

func TestCachePreloadReplacedByFetch(t *testing.T) {
	cache := newMemCache()
	require.NoError(t, cache.Save(context.Background(), "r1", []core.Message{
		{ID: "cached-1", ChatID: "r1", Content: "from disk", CreatedAt: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)},
	}))
	h := newHarness(t, withCache(cache))
	seeded := h.srv.Seed("r1", "u2", "from server")

	release := h.srv.Block("fetch_messages")
	require.NoError(t, h.ctrl.SwitchRoom("r1"))
	h.mustKind(core.EventMessagesChanged, "r1")
	assert.Equal(t, []string{"cached-1"}, ids(h.ctrl.Messages("r1")))
	assert.Equal(t, core.StateLoading, h.ctrl.RoomState("r1"))

	release()
	h.mustState("r1", core.StateLoaded)
	assert.Equal(t, []string{seeded[0].ID}, ids(h.ctrl.Messages("r1")))
	h.waitFor(func() bool { return slices.Equal(cache.ids("r1"), []string{seeded[0].ID}) })
}

func TestOfflineCacheShowsLoaded(t *testing.T) {
	cache := newMemCache()
	require.NoError(t, cache.Save(context.Background(), "r1", []core.Message{
		{ID: "cached-1", ChatID: "r1", Content: "from disk", CreatedAt: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)},
	}))
	offline := func(_ *Options, d *Deps) { d.Tracker = connectivity.NewTracker() }
	h := newHarness(t, withCache(cache), offline)
	h.srv.Seed("r1", "u2", "from server")

	release := h.srv.Block("fetch_messages")
	require.NoError(t, h.ctrl.SwitchRoom("r1"))
	h.mustState("r1", core.StateLoaded)
	assert.Equal(t, []string{"from disk"}, contents(h.ctrl.Messages("r1")))
	assert.False(t, h.ctrl.Online())

	release()
	h.mustKind(core.EventMessagesChanged, "r1")
	h.waitFor(func() bool {
		return slices.Equal(contents(h.ctrl.Messages("r1")), []string{"from server"})
	})
}

func TestTypingThrottledAndStopped(t *testing.T) {
	h := newHarness(t)
	h.open("r1")
	ctx := context.Background()

	require.NoError(t, h.ctrl.Typing(ctx, "h"))
	require.NoError(t, h.ctrl.Typing(ctx, "he"))
	require.NoError(t, h.ctrl.Typing(ctx, "hel"))
	assert.Equal(t, "hel", h.ctrl.Draft("r1"))

	h.waitFor(func() bool { return len(h.srv.Frames(proto.EventStopTyping)) == 1 })
	assert.Len(t, h.srv.Frames(proto.EventTyping), 1)
}

func TestTypingClearedDraftStops(t *testing.T) {
	h := newHarness(t)
	h.open("r1")
	ctx := context.Background()

	require.NoError(t, h.ctrl.Typing(ctx, "h"))
	require.NoError(t, h.ctrl.Typing(ctx, ""))
	h.waitFor(func() bool { return len(h.srv.Frames(proto.EventStopTyping)) == 1 })
	assert.Empty(t, h.ctrl.Draft("r1"))
}

func TestRemoteTypingExpires(t *testing.T) {
	h := newHarness(t)
	h.open("r1")

	h.srv.Push("r1", proto.EventUserTyping, proto.TypingData{RoomID: "r1", UserID: "u1", UserName: "Ana"})
	h.srv.Push("r1", proto.EventUserTyping, proto.TypingData{RoomID: "r1", UserID: "u2", UserName: "Bob"})

	ev := h.mustKind(core.EventTyping, "r1")
	assert.Equal(t, []string{"Bob"}, ev.Typing)
	assert.Equal(t, []string{"Bob"}, h.ctrl.TypingUsers("r1"))

	ev = h.mustKind(core.EventTyping, "r1")
	assert.Empty(t, ev.Typing)
}

func TestReconnectRejoinsActiveRoom(t *testing.T) {
	h := newHarness(t)
	h.open("r1")
	joins := len(h.srv.Frames(proto.EventJoinRoom))

	h.srv.DropConnections()
	h.waitFor(func() bool { return len(h.srv.Frames(proto.EventJoinRoom)) > joins })
	h.waitFor(func() bool { return slices.Contains(h.srv.Joined("r1"), "u1") })
	assert.True(t, h.ctrl.Online())
}

func TestSearchActiveRoom(t *testing.T) {
	h := newHarness(t)
	h.srv.Seed("r1", "u2", "Deploy at noon", "lunch?", "deploy done")
	h.open("r1")

	assert.Equal(t, []string{"Deploy at noon", "deploy done"}, contents(h.ctrl.Search("deploy")))
	assert.Empty(t, h.ctrl.Search(""))
}

func TestLoggedOutClearsState(t *testing.T) {
	h := newHarness(t)
	h.srv.Seed("r1", "u2", "a")
	require.NoError(t, h.ctrl.RefreshRooms(context.Background()))
	h.open("r1")

	require.NoError(t, h.ctrl.LoggedOut())
	h.mustEvent(func(ev core.Event) bool { return ev.Kind == core.EventLoggedOut })
	assert.Empty(t, h.ctrl.ActiveRoom())
	assert.Empty(t, h.ctrl.Messages("r1"))
	assert.Empty(t, h.ctrl.Rooms(roomlist.Filter{}))
}
