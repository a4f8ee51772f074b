/*
Copyright © 2024 SUSE LLC
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at
    http://www.apache.org/licenses/LICENSE-2.0
Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package streamer

import (
	"cmp"
	"fmt"
	"maps"
	"slices"

	"github.com/Masterminds/log-go"
	"github.com/hashicorp/go-multierror"
)

type stream struct {
	segment Segment
	clients map[ClientID]struct{}
}

// registry owns the target to segment map and the client to targets map.
// attach and detach are its only mutators, so the segment reference count
// always equals the number of distinct clients attached to it. A registry
// is guarded by the Streamer lock.
type registry struct {
	streams map[TargetKey]*stream
	clients map[ClientID]map[TargetKey]struct{}
}

func newRegistry() *registry {
	return &registry{
		streams: make(map[TargetKey]*stream),
		clients: make(map[ClientID]map[TargetKey]struct{}),
	}
}

func (r *registry) tracking(client ClientID, target TargetKey) bool {
	_, ok := r.clients[client][target]
	return ok
}

func (r *registry) hasClient(client ClientID) bool {
	return len(r.clients[client]) > 0
}

func (r *registry) segment(target TargetKey) Segment {
	if st, ok := r.streams[target]; ok {
		return st.segment
	}
	return nil
}

// attach subscribes client to target, creating the segment with create
// when target has none.
func (r *registry) attach(client ClientID, target TargetKey, create func() (Segment, error)) (Segment, error) {
	if r.tracking(client, target) {
		return nil, ErrAlreadyTracking
	}

	st, ok := r.streams[target]
	if ok {
		if _, err := st.segment.Acquire(); err != nil {
			return nil, fmt.Errorf("attaching client %d to %s: %w", client, target, err)
		}
	} else {
		seg, err := create()
		if err != nil {
			return nil, err
		}
		st = &stream{segment: seg, clients: make(map[ClientID]struct{})}
		r.streams[target] = st
	}

	st.clients[client] = struct{}{}
	if r.clients[client] == nil {
		r.clients[client] = make(map[TargetKey]struct{})
	}
	r.clients[client][target] = struct{}{}
	log.Debugf("client %d attached to %s, refcount %d", client, target, len(st.clients))
	return st.segment, nil
}

// detach removes one (client, target) pair and destroys the segment when it
// was the last one.
func (r *registry) detach(client ClientID, target TargetKey) error {
	if !r.tracking(client, target) {
		return fmt.Errorf("%w: client %d, target %s", ErrNotTracked, client, target)
	}

	delete(r.clients[client], target)
	if len(r.clients[client]) == 0 {
		delete(r.clients, client)
	}

	st := r.streams[target]
	delete(st.clients, client)
	if _, err := st.segment.Release(); err != nil {
		log.Errorf("releasing %s for client %d: %s", st.segment.Name(), client, err)
	}
	log.Debugf("client %d detached from %s, refcount %d", client, target, len(st.clients))
	if len(st.clients) > 0 {
		return nil
	}
	return r.destroy(target)
}

// detachClient removes every subscription held by client.
func (r *registry) detachClient(client ClientID) error {
	var errs *multierror.Error
	for _, target := range r.targetsOf(client) {
		if err := r.detach(client, target); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}

// detachTarget removes every subscription to target, whichever client made
// it, and destroys its segment.
func (r *registry) detachTarget(target TargetKey) error {
	st, ok := r.streams[target]
	if !ok {
		return fmt.Errorf("%w: target %s", ErrNotTracked, target)
	}
	var errs *multierror.Error
	for _, client := range slices.Sorted(maps.Keys(st.clients)) {
		if err := r.detach(client, target); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	// The target is gone; no subscription to it survives.
	for client, targets := range r.clients {
		delete(targets, target)
		if len(targets) == 0 {
			delete(r.clients, client)
		}
	}
	if _, ok := r.streams[target]; ok {
		if err := r.destroy(target); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}

// destroy notifies consumers and closes the segment of target.
func (r *registry) destroy(target TargetKey) error {
	st, ok := r.streams[target]
	if !ok {
		return nil
	}
	delete(r.streams, target)
	st.segment.NotifyProcessKilled()
	if err := st.segment.Close(); err != nil {
		return fmt.Errorf("destroying %s: %w", target, err)
	}
	log.Infof("stopped streaming %s", target)
	return nil
}

// destroyAll tears down every segment and clears both maps.
func (r *registry) destroyAll() error {
	var errs *multierror.Error
	for _, target := range r.targets() {
		if err := r.destroy(target); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	clear(r.clients)
	return errs.ErrorOrNil()
}

func (r *registry) targetsOf(client ClientID) []TargetKey {
	return sortTargets(slices.Collect(maps.Keys(r.clients[client])))
}

func (r *registry) targets() []TargetKey {
	return sortTargets(slices.Collect(maps.Keys(r.streams)))
}

func sortTargets(targets []TargetKey) []TargetKey {
	slices.SortFunc(targets, func(a, b TargetKey) int {
		switch {
		case a.all == b.all:
			return cmp.Compare(a.pid, b.pid)
		case a.all:
			return -1
		default:
			return 1
		}
	})
	return targets
}
