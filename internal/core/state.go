package core

// RoomState is the synchronization state of one room.
type RoomState int

const (
	StateUnloaded RoomState = iota
	StateLoading
	StateLoaded
	StateLoadingMore
	StateError
)

func (s RoomState) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	case StateLoadingMore:
		return "loading_more"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}
