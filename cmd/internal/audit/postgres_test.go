package audit

import (
	"context"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

type fakeExec struct {
	sql  []string
	args [][]any
}

func (f *fakeExec) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.sql = append(f.sql, sql)
	f.args = append(f.args, args)
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func TestPostgresSink_Write(t *testing.T) {
	t.Parallel()

	db := &fakeExec{}
	sink := NewPostgresSink(db)

	err := sink.Write(context.Background(), Record{
		Action: ActionRateLimited,
		Code:   " ",
		Origin: "10.0.0.1",
		At:     t0,
		Meta:   map[string]any{"op": "join"},
	})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if len(db.sql) != 1 || !strings.Contains(db.sql[0], "huddle.audit_log") {
		t.Fatalf("unexpected sql: %v", db.sql)
	}
	args := db.args[0]
	if args[0] != ActionRateLimited || args[1] != nil || args[2] != "10.0.0.1" {
		t.Fatalf("unexpected args: %v", args)
	}
	meta, ok := args[4].(*string)
	if !ok || meta == nil || *meta != `{"op":"join"}` {
		t.Fatalf("meta=%v", args[4])
	}
}

func TestPostgresSink_EnsureSchema(t *testing.T) {
	t.Parallel()

	db := &fakeExec{}
	if err := NewPostgresSink(db).EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	if len(db.sql) != 1 || !strings.Contains(db.sql[0], "CREATE TABLE IF NOT EXISTS huddle.audit_log") {
		t.Fatalf("unexpected sql: %v", db.sql)
	}
}
