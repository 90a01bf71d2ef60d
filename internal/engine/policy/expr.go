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

package policy

import (
	"context"
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// exprEnv is the shape rule expressions are compiled against:
//
//	record.<column>   direct fields of the record
//	before.<column>   pre-image fields on update, empty otherwise
//	caller.scope, caller.id
func exprEnv(req *Request) map[string]any {
	before := map[string]any{}
	if req.Before != nil {
		before = req.Before.Fields()
	}
	var record map[string]any
	if req.Record != nil {
		record = req.Record.Fields()
	}
	return map[string]any{
		"record": record,
		"before": before,
		"caller": map[string]any{"scope": string(req.Caller.Scope), "id": req.Caller.Id},
	}
}

// CompileExpr compiles a boolean rule expression into a Predicate.
func CompileExpr(src string) (Predicate, error) {
	program, err := expr.Compile(src,
		expr.Env(map[string]any{"record": map[string]any{}, "before": map[string]any{}, "caller": map[string]any{}}),
		expr.AsBool(),
	)
	if err != nil {
		return nil, fmt.Errorf("compile rule expression '%s': %w", src, err)
	}
	return exprPredicate(src, program), nil
}

// Expr is CompileExpr for rule tables built at startup; it panics on a bad expression.
func Expr(src string) Predicate {
	pred, err := CompileExpr(src)
	if err != nil {
		panic(err)
	}
	return pred
}

func exprPredicate(src string, program *vm.Program) Predicate {
	return func(ctx context.Context, env *Env, req *Request) (bool, error) {
		out, err := expr.Run(program, exprEnv(req))
		if err != nil {
			return false, fmt.Errorf("evaluate rule expression '%s': %w", src, err)
		}
		ok, _ := out.(bool)
		return ok, nil
	}
}
