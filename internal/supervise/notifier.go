package supervise

import (
	"sync"
)

// Event is what subscribers receive: a status view plus, when present, the
// crash diagnostic that triggered the event. The first event after
// subscribing is always a snapshot of current state.
type Event struct {
	// Snapshot marks the one-time state dump sent on subscribe.
	Snapshot bool

	Status ManagerStatus

	// Exit is the crash diagnostic; nil on snapshots taken while healthy.
	Exit *ExitInfo
}

// Observer is called for each delivered event.
type Observer func(Event)

// Subscription is an active observer registration.
type Subscription struct {
	id       uint64
	notifier *notifier
}

// Unsubscribe detaches the observer. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	if s.notifier != nil {
		s.notifier.unsubscribe(s.id)
	}
}

// notifier is a fire-and-forget broadcast channel for exit events. Delivery
// is synchronous with no queuing for slow consumers; subscribers detach
// themselves when they disconnect.
type notifier struct {
	mu        sync.RWMutex
	observers map[uint64]Observer
	nextID    uint64
}

func newNotifier() *notifier {
	return &notifier{
		observers: make(map[uint64]Observer),
	}
}

func (n *notifier) subscribe(obs Observer) *Subscription {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.nextID
	n.nextID++
	n.observers[id] = obs

	return &Subscription{id: id, notifier: n}
}

func (n *notifier) unsubscribe(id uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.observers, id)
}

// publish delivers the event to every current observer. Observers run
// outside the lock so they may unsubscribe from within the callback.
func (n *notifier) publish(ev Event) {
	n.mu.RLock()
	observers := make([]Observer, 0, len(n.observers))
	for _, obs := range n.observers {
		observers = append(observers, obs)
	}
	n.mu.RUnlock()

	for _, obs := range observers {
		obs(ev)
	}
}
