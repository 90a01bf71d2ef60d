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

package notify

import (
	"context"

	"github.com/google/wire"

	"github.com/go-arcade/guild/pkg/cache"
	"github.com/go-arcade/guild/pkg/event"
	"github.com/go-arcade/guild/pkg/log"
)

// ProviderSet provides notify layer related dependencies
var ProviderSet = wire.NewSet(
	event.NewEventBus,
	ProvidePublisher,
)

// ProvidePublisher always publishes on the in-process bus and, when redis is
// configured, on the redis channel as well.
func ProvidePublisher(conf cache.Redis, bus *event.EventBus) (Publisher, func(), error) {
	local := NewBusPublisher(bus)
	if !conf.Enabled() {
		return local, func() {}, nil
	}
	client, err := cache.NewRedis(context.Background(), *conf.SetDefaults())
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := client.Close(); err != nil {
			log.Warnw("failed to close redis", "error", err)
		}
	}
	log.Infow("invite events published to redis", "channel", DefaultChannel)
	return Fanout{local, NewRedisPublisher(client, DefaultChannel)}, cleanup, nil
}
