package core

// EventKind is a notification the controller emits to the render layer.
type EventKind int

const (
	// EventMessagesChanged notifies that a room's canonical message list changed.
	EventMessagesChanged EventKind = iota
	// EventPagePrepended delivers an older page; Anchor is the message to keep in view.
	EventPagePrepended
	// EventRoomState reports a room state machine transition.
	EventRoomState
	// EventRoomsChanged notifies that the room directory changed.
	EventRoomsChanged
	// EventNotice carries a dismissible notification.
	EventNotice
	// EventRedirect asks the view to go back to the room list.
	EventRedirect
	// EventSendConfirmed reports a reconciled optimistic send.
	EventSendConfirmed
	// EventSendFailed reports a rolled back send; Draft holds the restored input.
	EventSendFailed
	// EventWaitingApproval reports that the join request for Room is pending.
	EventWaitingApproval
	// EventJoinRequired reports that the user must request to join Room.
	EventJoinRequired
	// EventJoinApproved reports an approved join request.
	EventJoinApproved
	// EventJoinRejected reports a rejected join request.
	EventJoinRejected
	// EventConnectivity reports an online flag change.
	EventConnectivity
	// EventTyping reports a change of the typing set for Room.
	EventTyping
	// EventLoggedOut reports that the session was dropped.
	EventLoggedOut
)

// NoticeLevel grades notifications.
type NoticeLevel int

const (
	NoticeInfo NoticeLevel = iota
	NoticeError
)

// Event is sent to the render layer to describe what happened.
type Event struct {
	Kind    EventKind
	Room    string
	State   RoomState
	Anchor  string
	Message Message
	Draft   string
	Notice  string
	Level   NoticeLevel
	Error   *CoreError
	Online  bool
	Typing  []string
}
