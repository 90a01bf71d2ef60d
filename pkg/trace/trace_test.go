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

package trace

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestStartEnd_NoProvider(t *testing.T) {
	ctx, span := Start(context.Background(), "engine.test", attribute.String("kind", "team"))
	if ctx == nil || span == nil {
		t.Fatal("expected a context and a span")
	}
	End(span, errors.New("boom"))
	End(span, nil)
}
