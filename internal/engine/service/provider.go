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

package service

import (
	"github.com/google/wire"

	"github.com/go-arcade/guild/internal/engine/config"
	"github.com/go-arcade/guild/internal/engine/notify"
	"github.com/go-arcade/guild/internal/engine/repo"
	"github.com/go-arcade/guild/pkg/metrics"
)

// ProviderSet provides service layer related dependencies
var ProviderSet = wire.NewSet(ProvideEngine)

func ProvideEngine(store repo.IStore, conf config.Engine, m *metrics.EngineMetrics, pub notify.Publisher) *Engine {
	return NewEngine(store, conf, m, pub)
}
