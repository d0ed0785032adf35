package mqtt

import "fmt"

// Subscription identifies one registered handler. It is the value passed
// back to Unsubscribe.
type Subscription struct {
	ID      uint64
	Pattern string
}

// Subscribe adds handler for every message whose topic matches pattern.
//
// The first handler on a pattern issues a broker SUBSCRIBE; later ones
// only join the local handler list. A higher qos than the current one
// re-subscribes at the higher level. If the broker rejects the SUBSCRIBE
// the handler is not registered.
//
//	sub, err := client.Subscribe("ABC123/status/res", 1,
//	    func(topic string, payload []byte) error {
//	        return handle(payload)
//	    })
//	defer client.Unsubscribe(sub)
func (c *Client) Subscribe(pattern string, qos byte, handler MessageHandler) (Subscription, error) {
	if err := ValidatePattern(pattern); err != nil {
		return Subscription{}, err
	}
	if qos > maxQoS {
		return Subscription{}, ErrInvalidQoS
	}
	if handler == nil {
		return Subscription{}, fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	}
	if !c.IsConnected() {
		return Subscription{}, ErrNotConnected
	}

	c.brokerMu.Lock()
	defer c.brokerMu.Unlock()

	// Register locally first so nothing the broker sends after SUBACK is lost.
	c.tableMu.Lock()
	c.nextID++
	entry := &handlerEntry{id: c.nextID, pattern: pattern, handler: handler}
	c.handlers = append(c.handlers, entry)

	st, exists := c.patterns[pattern]
	needBroker := !exists || qos > st.qos
	prevQoS := byte(0)
	if exists {
		prevQoS = st.qos
		st.refs++
		if qos > st.qos {
			st.qos = qos
		}
	} else {
		c.patterns[pattern] = &patternState{qos: qos, refs: 1}
	}
	c.tableMu.Unlock()

	sub := Subscription{ID: entry.id, Pattern: pattern}
	if !needBroker {
		return sub, nil
	}

	if err := waitToken(c.sess.Subscribe(pattern, qos, nil), ErrSubscribeFailed); err != nil {
		c.tableMu.Lock()
		c.removeEntryLocked(entry.id)
		if st := c.patterns[pattern]; st != nil {
			st.refs--
			if st.refs == 0 {
				delete(c.patterns, pattern)
			} else {
				st.qos = prevQoS
			}
		}
		c.tableMu.Unlock()
		return Subscription{}, err
	}
	return sub, nil
}

// Unsubscribe removes one handler. When it was the last handler on its
// pattern the broker subscription is dropped too. Unsubscribing twice is
// a no-op.
//
// The local handler is always removed, even if the broker UNSUBSCRIBE
// fails or the client is offline.
func (c *Client) Unsubscribe(sub Subscription) error {
	c.brokerMu.Lock()
	defer c.brokerMu.Unlock()

	c.tableMu.Lock()
	if !c.removeEntryLocked(sub.ID) {
		c.tableMu.Unlock()
		return nil
	}
	last := false
	if st := c.patterns[sub.Pattern]; st != nil {
		st.refs--
		if st.refs == 0 {
			delete(c.patterns, sub.Pattern)
			last = true
		}
	}
	c.tableMu.Unlock()

	if !last || !c.IsConnected() {
		return nil
	}
	return waitToken(c.sess.Unsubscribe(sub.Pattern), ErrUnsubscribeFailed)
}

// removeEntryLocked drops a handler by id, keeping the order of the rest.
// Callers hold tableMu.
func (c *Client) removeEntryLocked(id uint64) bool {
	for i, h := range c.handlers {
		if h.id == id {
			// Copy so a Dispatch snapshot taken earlier is unaffected.
			next := make([]*handlerEntry, 0, len(c.handlers)-1)
			next = append(next, c.handlers[:i]...)
			next = append(next, c.handlers[i+1:]...)
			c.handlers = next
			return true
		}
	}
	return false
}

// SubscriptionCount returns the number of patterns held at the broker.
func (c *Client) SubscriptionCount() int {
	c.tableMu.RLock()
	defer c.tableMu.RUnlock()
	return len(c.patterns)
}

// HasSubscription reports whether pattern is currently subscribed.
// This compares the pattern string, it does not match topics.
func (c *Client) HasSubscription(pattern string) bool {
	c.tableMu.RLock()
	defer c.tableMu.RUnlock()
	_, ok := c.patterns[pattern]
	return ok
}

// HandlerCount returns the number of registered handlers across all patterns.
func (c *Client) HandlerCount() int {
	c.tableMu.RLock()
	defer c.tableMu.RUnlock()
	return len(c.handlers)
}
