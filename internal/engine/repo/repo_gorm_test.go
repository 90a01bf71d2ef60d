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

package repo

import (
	"fmt"
	"testing"

	"github.com/go-arcade/guild/internal/engine/model"
	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func dryRunDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(mysql.New(mysql.Config{
		DSN:                       "guild:guild@tcp(127.0.0.1:3306)/guild?parseTime=True",
		SkipInitializeWithVersion: true,
	}), &gorm.Config{DryRun: true, DisableAutomaticPing: true})
	require.NoError(t, err)
	return db
}

func TestWhereScopeQuotesReservedColumns(t *testing.T) {
	db := dryRunDB(t)

	var rows []model.Manages
	stmt := db.Scopes(whereScope(Where{"in": "u1"})).Find(&rows).Statement
	sql := stmt.SQL.String()

	assert.Contains(t, sql, "`t_manages`")
	assert.Contains(t, sql, "`in` = ?")
	assert.Equal(t, []any{"u1"}, stmt.Vars)
}

func TestWhereScopeIn(t *testing.T) {
	db := dryRunDB(t)

	var rows []model.Invite
	stmt := db.Scopes(whereScope(Where{"origin": []string{"u1", "u1@example.com"}})).Find(&rows).Statement

	assert.Contains(t, stmt.SQL.String(), "`origin` IN (?,?)")
}

func TestIsWriteConflict(t *testing.T) {
	deadlock := &mysqldriver.MySQLError{Number: mysqlDeadlock, Message: "Deadlock found"}
	timeout := &mysqldriver.MySQLError{Number: mysqlLockWaitTimeout}
	dup := &mysqldriver.MySQLError{Number: 1062}

	assert.True(t, isWriteConflict(deadlock))
	assert.True(t, isWriteConflict(errors.Wrap(timeout, "save")))
	assert.True(t, isWriteConflict(fmt.Errorf("tx: %w", deadlock)))
	assert.False(t, isWriteConflict(dup))
	assert.False(t, isWriteConflict(errors.New("boom")))
}
