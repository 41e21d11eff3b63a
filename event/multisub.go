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

// JoinSubscriptions joins multiple subscriptions to be tracked as one
// subscription. Unsubscribing the returned subscription unsubscribes all of
// them. Node components that fan out a single logical watch (e.g. the
// dispatcher watching both the ledger feed and the node-arena feed) use this
// to manage the pair with a single Unsubscribe call.
//
// If one of the joined subscriptions reports an error (as opposed to being
// unsubscribed directly), that error is propagated and the rest are torn
// down. Unsubscribing an individual member on its own does not affect the
// others or the joined subscription.
func JoinSubscriptions(subs ...Subscription) Subscription {
	return NewSubscription(func(unsubbed <-chan struct{}) error {
		var err error
		select {
		case err = <-anyError(subs):
		case <-unsubbed:
		}
		for _, s := range subs {
			s.Unsubscribe()
		}
		return err
	})
}

// anyError returns a channel that receives the first non-close error
// reported by any of subs. Channels closed via a plain Unsubscribe (no error
// value sent) are ignored.
func anyError(subs []Subscription) <-chan error {
	out := make(chan error)
	for _, s := range subs {
		s := s
		go func() {
			if err, ok := <-s.Err(); ok {
				out <- err
			}
		}()
	}
	return out
}
