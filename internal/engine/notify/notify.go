// Copyright 2025 Arcade Team
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package notify publishes invite lifecycle events once the mutation that
// caused them has committed.
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"github.com/go-arcade/guild/internal/engine/invariant"
	"github.com/go-arcade/guild/internal/engine/model"
	"github.com/go-arcade/guild/internal/engine/policy"
	"github.com/go-arcade/guild/pkg/event"
)

const (
	TopicInviteCreated = "invite.created"
	TopicInviteDeleted = "invite.deleted"

	DefaultChannel = "guild:invites"
)

// InviteEvent tells an external mailer that an invite appeared or went away.
type InviteEvent struct {
	Topic  string        `json:"topic"`
	Invite *model.Invite `json:"invite"`
	// Cause is the id of the record whose mutation removed the invite, e.g.
	// the edge created by accepting it.
	Cause string    `json:"cause,omitempty"`
	At    time.Time `json:"at"`
}

func (e InviteEvent) EventName() string { return e.Topic }

type Publisher interface {
	Publish(ctx context.Context, ev InviteEvent) error
}

// InviteEvents picks the invite creations and deletions out of applied mutations.
func InviteEvents(applied []*invariant.Mutation, at time.Time) []InviteEvent {
	var out []InviteEvent
	for _, m := range applied {
		if m.Kind() != model.KindInvite {
			continue
		}
		switch m.Op {
		case policy.OpCreate:
			out = append(out, InviteEvent{Topic: TopicInviteCreated, Invite: m.After.(*model.Invite), Cause: m.Cause, At: at})
		case policy.OpDelete:
			out = append(out, InviteEvent{Topic: TopicInviteDeleted, Invite: m.Before.(*model.Invite), Cause: m.Cause, At: at})
		}
	}
	return out
}

// PublishAll publishes every event and joins the failures.
func PublishAll(ctx context.Context, p Publisher, events []InviteEvent) error {
	if p == nil {
		return nil
	}
	var errs []error
	for _, ev := range events {
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// BusPublisher delivers events to in-process handlers.
type BusPublisher struct {
	bus *event.EventBus
}

func NewBusPublisher(bus *event.EventBus) *BusPublisher {
	return &BusPublisher{bus: bus}
}

func (p *BusPublisher) Publish(_ context.Context, ev InviteEvent) error {
	return p.bus.Publish(ev)
}

// redisPublishing is the slice of redis.Cmdable the publisher uses.
type redisPublishing interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// RedisPublisher sends events as JSON over a redis pub/sub channel.
type RedisPublisher struct {
	client  redisPublishing
	channel string
}

func NewRedisPublisher(client redis.Cmdable, channel string) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisPublisher{client: client, channel: channel}
}

func (p *RedisPublisher) Publish(ctx context.Context, ev InviteEvent) error {
	payload, err := sonic.Marshal(ev)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, p.channel, payload).Err()
}

// Fanout publishes to every publisher in turn.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, ev InviteEvent) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
