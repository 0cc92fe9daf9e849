package events

import "sync"

// Subscriber receives live events. It is closed by Unsubscribe or
// CloseAllSubscribers.
type Subscriber chan Event

// subscriberBuffer absorbs a burst of cell events from one sweep step.
const subscriberBuffer = 64

// watchers fans emitted events out to live subscribers. Each subscriber is
// either unfiltered ("") or pinned to one sweep run.
type watchers struct {
	mu   sync.RWMutex
	runs map[Subscriber]string
}

var live = &watchers{runs: make(map[Subscriber]string)}

// Subscribe returns a channel receiving every event.
func Subscribe() Subscriber {
	return SubscribeRun("")
}

// SubscribeRun returns a channel receiving only events of the given sweep
// run. An empty runID receives everything.
func SubscribeRun(runID string) Subscriber {
	ch := make(Subscriber, subscriberBuffer)
	live.mu.Lock()
	live.runs[ch] = runID
	live.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
// Unsubscribing twice, or after CloseAllSubscribers, is a no-op.
func Unsubscribe(sub Subscriber) {
	live.mu.Lock()
	defer live.mu.Unlock()
	if _, ok := live.runs[sub]; !ok {
		return
	}
	delete(live.runs, sub)
	close(sub)
}

// CloseAllSubscribers closes every subscriber channel, ending any event
// streams. Called when the server shuts down.
func CloseAllSubscribers() {
	live.mu.Lock()
	defer live.mu.Unlock()
	for sub := range live.runs {
		delete(live.runs, sub)
		close(sub)
	}
}

// broadcast never blocks Emit: a subscriber with a full buffer misses e.
func broadcast(e Event) {
	id := runID(e.Fields)

	live.mu.RLock()
	defer live.mu.RUnlock()
	for sub, want := range live.runs {
		if want != "" && want != id {
			continue
		}
		select {
		case sub <- e:
		default:
		}
	}
}

// SubscriberCount returns the current number of subscribers.
func SubscriberCount() int {
	live.mu.RLock()
	defer live.mu.RUnlock()
	return len(live.runs)
}

// RecentEvents returns the last n buffered events, or all of them when n is
// zero or exceeds what is buffered.
func RecentEvents(n int) []Event {
	return lastN(buffer.Snapshot(), n)
}

// RecentRunEvents is RecentEvents restricted to one sweep run.
func RecentRunEvents(id string, n int) []Event {
	if id == "" {
		return RecentEvents(n)
	}
	return lastN(buffer.Filter(func(e Event) bool { return runID(e.Fields) == id }), n)
}

func lastN(all []Event, n int) []Event {
	if n <= 0 || n >= len(all) {
		return all
	}
	return all[len(all)-n:]
}
