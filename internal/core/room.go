package core

import "time"

// MembershipStatus is the current user's relation to a room.
type MembershipStatus string

const (
	MembershipNone    MembershipStatus = ""
	MembershipMember  MembershipStatus = "member"
	MembershipPending MembershipStatus = "pending"
	MembershipInvited MembershipStatus = "invited"
)

// Room is a named conversation as listed in the sidebar.
type Room struct {
	ID          string
	Name        string
	Description string
	Avatar      string
	LastMessage string
	Unread      bool
	AdminID     string
	Membership  MembershipStatus
	UpdatedAt   time.Time
}

// IsMember reports whether the current user is a confirmed member.
func (r Room) IsMember() bool {
	return r.Membership == MembershipMember
}

// Membership is the result of a membership check.
type Membership struct {
	IsMember bool
	Status   MembershipStatus
	Room     *Room
}

// NewRoomRequest describes a room to create.
type NewRoomRequest struct {
	Name        string
	Description string
	Avatar      string
	Private     bool
}

// JoinDecision is the backend's answer to a join request.
type JoinDecision struct {
	RoomID   string
	RoomName string
	Approved bool
}

// User is an authenticated account.
type User struct {
	ID     string
	Name   string
	Email  string
	Avatar string
}
