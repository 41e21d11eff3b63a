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
	"reflect"
	"sync"
)

// FeedOf is a generic version of Feed. It avoids the reflect.ValueOf done on
// every Send, and additionally supports a context-aware SendWithCtx that can
// drop slow subscribers instead of blocking forever on them. The dispatcher's
// autoscale signal feed is a FeedOf.
type FeedOf[T any] struct {
	once      sync.Once
	sendLock  chan struct{}
	removeSub chan interface{}
	sendCases caseList

	mu    sync.Mutex
	inbox caseList
}

func (f *FeedOf[T]) init() {
	f.sendLock = make(chan struct{}, 1)
	f.sendLock <- struct{}{}
	f.removeSub = make(chan interface{})
	f.sendCases = caseList{{Chan: reflect.ValueOf(f.removeSub), Dir: reflect.SelectRecv}}
}

// Subscribe adds a channel to the feed.
func (f *FeedOf[T]) Subscribe(channel chan<- T) Subscription {
	f.once.Do(f.init)

	chanval := reflect.ValueOf(channel)
	sub := &feedOfSub[T]{feed: f, channel: chanval, err: make(chan error, 1)}

	f.mu.Lock()
	defer f.mu.Unlock()
	cas := reflect.SelectCase{Dir: reflect.SelectSend, Chan: chanval}
	f.inbox = append(f.inbox, cas)
	return sub
}

func (f *FeedOf[T]) remove(sub *feedOfSub[T]) {
	ch := sub.channel.Interface()
	f.mu.Lock()
	index := f.inbox.find(ch)
	if index != -1 {
		f.inbox = f.inbox.delete(index)
		f.mu.Unlock()
		return
	}
	f.mu.Unlock()

	select {
	case f.removeSub <- ch:
	case <-f.sendLock:
		f.sendCases = f.sendCases.delete(f.sendCases.find(ch))
		f.sendLock <- struct{}{}
	}
}

// Send delivers to all subscribed channels, blocking until every subscriber
// has received the value. It returns the number of subscribers the value was
// sent to.
func (f *FeedOf[T]) Send(value T) (nsent int) {
	nsent, _ = f.SendWithCtx(context.Background(), false, value)
	return nsent
}

// SendWithCtx delivers to all subscribed channels. If drop is true,
// subscribers that have not received the value by the time ctx is canceled
// are skipped rather than waited on forever; it returns the number sent and
// the number dropped.
func (f *FeedOf[T]) SendWithCtx(ctx context.Context, drop bool, value T) (nsent, ndropped int) {
	rvalue := reflect.ValueOf(value)

	f.once.Do(f.init)
	<-f.sendLock

	f.mu.Lock()
	f.sendCases = append(f.sendCases, f.inbox...)
	f.inbox = nil
	f.mu.Unlock()

	for i := firstSubSendCase; i < len(f.sendCases); i++ {
		f.sendCases[i].Send = rvalue
	}

	cases := f.sendCases
	doneCh := ctx.Done()
	for {
		for i := firstSubSendCase; i < len(cases); i++ {
			if cases[i].Chan.TrySend(rvalue) {
				nsent++
				cases = cases.deactivate(i)
				i--
			}
		}
		if len(cases) == firstSubSendCase {
			break
		}
		if drop && doneCh != nil {
			selectCases := append(caseList{{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(doneCh)}}, cases...)
			chosen, recv, _ := reflect.Select(selectCases)
			if chosen == 0 {
				ndropped += len(cases) - firstSubSendCase
				break
			}
			chosen-- // account for the prepended done case
			if chosen == 0 {
				index := f.sendCases.find(recv.Interface())
				f.sendCases = f.sendCases.delete(index)
				if index >= 0 && index < len(cases) {
					cases = f.sendCases[:len(cases)-1]
				}
			} else {
				cases = cases.deactivate(chosen)
				nsent++
			}
			continue
		}
		chosen, recv, _ := reflect.Select(cases)
		if chosen == 0 {
			index := f.sendCases.find(recv.Interface())
			f.sendCases = f.sendCases.delete(index)
			if index >= 0 && index < len(cases) {
				cases = f.sendCases[:len(cases)-1]
			}
		} else {
			cases = cases.deactivate(chosen)
			nsent++
		}
	}

	for i := firstSubSendCase; i < len(f.sendCases); i++ {
		f.sendCases[i].Send = reflect.Value{}
	}
	f.sendLock <- struct{}{}
	return nsent, ndropped
}

type feedOfSub[T any] struct {
	feed    *FeedOf[T]
	channel reflect.Value
	errOnce sync.Once
	err     chan error
}

func (sub *feedOfSub[T]) Unsubscribe() {
	sub.errOnce.Do(func() {
		sub.feed.remove(sub)
		close(sub.err)
	})
}

func (sub *feedOfSub[T]) Err() <-chan error {
	return sub.err
}
