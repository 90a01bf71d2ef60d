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

package invariant

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-arcade/guild/internal/engine/errs"
	"github.com/go-arcade/guild/internal/engine/model"
	"github.com/go-arcade/guild/internal/engine/policy"
	"github.com/go-playground/validator/v10"
)

// newFieldValidator reports struct tag violations under the record's column
// names. "words=N" requires at least N whitespace separated words.
func newFieldValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, part := range strings.Split(f.Tag.Get("gorm"), ";") {
			if name, ok := strings.CutPrefix(part, "column:"); ok {
				return name
			}
		}
		return f.Name
	})
	_ = v.RegisterValidation("words", func(fl validator.FieldLevel) bool {
		n, err := strconv.Atoi(fl.Param())
		if err != nil {
			return false
		}
		return len(strings.Fields(fl.Field().String())) >= n
	})
	return v
}

// checkFields runs the struct tag checks and the bounds no tag can express.
func (e *Enforcer) checkFields(m *Mutation) error {
	rec := m.After
	if err := e.fields.Struct(rec); err != nil {
		var invalid validator.ValidationErrors
		if !errors.As(err, &invalid) || len(invalid) == 0 {
			return errs.Validation(rec.Kind(), rec.GetId(), "", err.Error())
		}
		fe := invalid[0]
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		return errs.Validation(rec.Kind(), rec.GetId(), fe.Field(), fmt.Sprintf("value fails '%s'", rule))
	}

	if ev, ok := rec.(*model.Event); ok {
		if err := checkOptionBounds(ev); err != nil {
			return err
		}
	}
	if m.Op == policy.OpUpdate {
		return checkImmutable(m.Before, m.After)
	}
	return nil
}

func checkOptionBounds(ev *model.Event) error {
	o := ev.Options
	pairs := []struct {
		min, max *int
		field    string
	}{
		{o.MinPoolSize, o.MaxPoolSize, "max_pool_size"},
		{o.MinAge, o.MaxAge, "max_age"},
		{o.MinTeamSize, o.MaxTeamSize, "max_team_size"},
	}
	for _, p := range pairs {
		if p.min != nil && p.max != nil && *p.min > *p.max {
			return errs.Validation(model.KindEvent, ev.Id, p.field, fmt.Sprintf("%d is below the minimum %d", *p.max, *p.min))
		}
	}
	return nil
}

// immutableFields are the columns fixed at creation, per kind.
var immutableFields = map[model.Kind][]string{
	model.KindManages: {"in", "out"},
	model.KindPlaysIn: {"in", "out"},
	model.KindAttends: {"in", "in_kind", "out"},
	model.KindInvite:  {"origin", "target", "target_kind"},
	model.KindLog:     {"record", "record_kind", "event", "change", "details"},
}

func checkImmutable(before, after model.Record) error {
	fields := immutableFields[after.Kind()]
	if len(fields) == 0 {
		return nil
	}
	b, a := before.Fields(), after.Fields()
	for _, f := range fields {
		if !reflect.DeepEqual(b[f], a[f]) {
			return errs.Validation(after.Kind(), after.GetId(), f, "field cannot be changed")
		}
	}
	return nil
}
