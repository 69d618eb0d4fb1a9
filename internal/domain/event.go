package domain

// EventKind tags the variant carried by an Event.
type EventKind int

const (
	EventHeart EventKind = iota + 1
	EventChat
	EventJoin
	EventDirectMessage
)

func (k EventKind) String() string {
	switch k {
	case EventHeart:
		return "heart"
	case EventChat:
		return "chat"
	case EventJoin:
		return "join"
	case EventDirectMessage:
		return "direct_message"
	default:
		return "unknown"
	}
}

// Event is a decoded engagement event. Text is set for chat and direct
// messages; Recipients only for direct messages.
type Event struct {
	Kind       EventKind
	User       User
	Color      string
	Text       string
	Recipients []string
}

// EventHandler consumes decoded events. Handlers are invoked in the order
// they were registered.
type EventHandler func(Event)
