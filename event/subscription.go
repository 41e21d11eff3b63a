// Copyright 2024 The qflow Authors
// This file is part of the qflow library.
//
// The qflow library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The qflow library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the qflow library. If not, see <http://www.gnu.org/licenses/>.

package event

import (
	"context"
	"sync"
	"time"
)

// Subscription represents a stream of events. The carrier of the events is
// typically a channel, but isn't part of the interface.
//
// Subscriptions can fail while established. Failures are reported through an
// error channel. It is safe to call Unsubscribe multiple times or
// concurrently, and it is safe to call Unsubscribe after a subscription
// failure.
//
// Unsubscribe has to be called to release resources held by a Subscription,
// regardless of whether an error occurred or not.
type Subscription interface {
	Err() <-chan error // returns the error channel
	Unsubscribe()      // cancels sending of events, closing the error channel
}

// NewSubscription runs a producer function as a subscription, with an
// ability to unsubscribe as soon as fn returns.
//
// fn should run an event loop until it is terminated by closing the quit
// channel. The error channel returned by Err returns fn's return value,
// which may be nil.
func NewSubscription(fn func(quit <-chan struct{}) error) Subscription {
	s := &funcSub{unsub: make(chan struct{}), err: make(chan error, 1)}
	go func() {
		defer close(s.err)
		err := fn(s.unsub)
		s.mu.Lock()
		defer s.mu.Unlock()
		if !s.unsubscribed {
			if err != nil {
				s.err <- err
			}
			s.unsubscribed = true
		}
	}()
	return s
}

type funcSub struct {
	unsub        chan struct{}
	err          chan error
	mu           sync.Mutex
	unsubscribed bool
}

func (s *funcSub) Unsubscribe() {
	s.mu.Lock()
	if s.unsubscribed {
		s.mu.Unlock()
		return
	}
	s.unsubscribed = true
	close(s.unsub)
	s.mu.Unlock()
	// Wait for producer shutdown.
	<-s.err
}

func (s *funcSub) Err() <-chan error {
	return s.err
}

// SubscriptionScope provides a facility to unsubscribe multiple subscriptions
// at once.
//
// For code that handle more than one subscription, a scope can be used to
// conveniently unsubscribe all of them with a single call. The example for
// Feed demonstrates a typical use in a larger program.
//
// The zero value is ready to use.
type SubscriptionScope struct {
	mu     sync.Mutex
	subs   map[*scopeSub]struct{}
	closed bool
}

type scopeSub struct {
	sc *SubscriptionScope
	s  Subscription
}

// Track starts tracking a subscription. If the scope is closed, Track
// returns nil. The returned subscription is a wrapper, Unsubscribing the
// wrapper removes it from the scope.
func (sc *SubscriptionScope) Track(s Subscription) Subscription {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.closed {
		return nil
	}
	if sc.subs == nil {
		sc.subs = make(map[*scopeSub]struct{})
	}
	ss := &scopeSub{sc, s}
	sc.subs[ss] = struct{}{}
	return ss
}

// Close calls Unsubscribe on all tracked subscriptions and prevents
// further additions to the tracked set. Calls to Track after Close return
// nil.
func (sc *SubscriptionScope) Close() {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.closed {
		return
	}
	sc.closed = true
	for s := range sc.subs {
		s.s.Unsubscribe()
	}
	sc.subs = nil
}

// Count returns the number of tracked subscriptions. It is meant to be used
// for diagnostics.
func (sc *SubscriptionScope) Count() int {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return len(sc.subs)
}

func (s *scopeSub) Unsubscribe() {
	s.s.Unsubscribe()
	s.sc.mu.Lock()
	defer s.sc.mu.Unlock()
	delete(s.sc.subs, s)
}

func (s *scopeSub) Err() <-chan error {
	return s.s.Err()
}

// Resubscribe calls fn repeatedly to keep a subscription established. When
// the subscription is established, Resubscribe waits for it to fail and
// calls fn again. This process repeats until Unsubscribe is called or the
// active subscription ends successfully.
//
// Resubscribe applies backoff between calls to fn. The time between calls is
// adapted based on the error rate, but will never exceed backoffMax.
func Resubscribe(backoffMax time.Duration, fn ResubscribeFunc) Subscription {
	s := &resubscribeSub{
		waitTime:   backoffMax / 10,
		backoffMax: backoffMax,
		fn:         fn,
		err:        make(chan error),
		unsub:      make(chan struct{}),
	}
	go s.loop()
	return s
}

// A ResubscribeFunc attempts to establish a subscription.
type ResubscribeFunc func(context.Context) (Subscription, error)

type resubscribeSub struct {
	fn                   ResubscribeFunc
	err                  chan error
	unsub                chan struct{}
	unsubOnce            sync.Once
	lastTry              time.Time
	waitTime, backoffMax time.Duration
}

func (s *resubscribeSub) Unsubscribe() {
	s.unsubOnce.Do(func() {
		s.unsub <- struct{}{}
		<-s.err
	})
}

func (s *resubscribeSub) Err() <-chan error {
	return s.err
}

func (s *resubscribeSub) loop() {
	defer close(s.err)
	var done bool
	for !done {
		sub := s.subscribe()
		if sub == nil {
			break
		}
		done = s.waitForError(sub)
		sub.Unsubscribe()
	}
}

func (s *resubscribeSub) subscribe() Subscription {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	for {
		s.lastTry = time.Now()
		rsub, err := s.fn(ctx)
		if err == nil {
			return rsub
		}
		// Subscribing failed, wait before retrying.
		select {
		case <-s.backoff():
		case <-s.unsub:
			s.err <- nil
			return nil
		}
	}
}

func (s *resubscribeSub) backoff() <-chan time.Time {
	s.waitTime *= 2
	if s.waitTime > s.backoffMax {
		s.waitTime = s.backoffMax
	}
	return time.After(s.waitTime)
}

func (s *resubscribeSub) waitForError(sub Subscription) bool {
	defer sub.Unsubscribe()
	select {
	case err := <-sub.Err():
		s.err <- err
		return err == nil
	case <-s.unsub:
		s.err <- nil
		return true
	}
}
