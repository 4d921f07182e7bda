package jrpcws

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// Handler receives the raw params of a pushed notification. It runs on
// the read loop, so a slow handler delays the next frame.
type Handler func(params json.RawMessage)

// Subscription is a live registration for one topic.
type Subscription struct {
	client  *Client
	topic   string
	handler Handler
	once    sync.Once
}

// Subscribe registers handler for topic. Every live handler of a topic is
// invoked, in registration order; subscribing twice does not replace the
// earlier handler.
func (c *Client) Subscribe(topic string, handler Handler) *Subscription {
	s := &Subscription{
		client:  c,
		topic:   topic,
		handler: handler,
	}
	c.mu.Lock()
	c.subs[topic] = append(c.subs[topic], s)
	c.mu.Unlock()
	c.logger.Debug("jrpcws: subscribed", zap.String("topic", topic))
	return s
}

func (s *Subscription) Topic() string {
	return s.topic
}

// Release removes the handler. It is safe to call more than once.
func (s *Subscription) Release() {
	s.once.Do(func() {
		s.client.unsubscribe(s)
	})
}

func (c *Client) unsubscribe(s *Subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	current := c.subs[s.topic]
	kept := make([]*Subscription, 0, len(current))
	for _, sub := range current {
		if sub != s {
			kept = append(kept, sub)
		}
	}
	if len(kept) == 0 {
		delete(c.subs, s.topic)
		return
	}
	c.subs[s.topic] = kept
}

func (c *Client) notify(topic string, params json.RawMessage) {
	c.mu.Lock()
	handlers := make([]Handler, 0, len(c.subs[topic]))
	for _, sub := range c.subs[topic] {
		handlers = append(handlers, sub.handler)
	}
	c.mu.Unlock()

	if len(handlers) == 0 {
		c.logger.Debug("jrpcws: notification without subscribers", zap.String("topic", topic))
		return
	}
	for _, h := range handlers {
		h(params)
	}
}
