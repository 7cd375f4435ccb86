package schema

import (
	"context"
	"fmt"

	"github.com/faucetdb/safeshift/internal/connector"
)

// Builder runs schema operations against one adapter. The first failure is
// sticky: every later call is a no-op and Err reports it. A pretend Builder
// records the statements it would run without executing them.
type Builder struct {
	ctx        context.Context
	adapter    connector.Adapter
	pretend    bool
	statements []string
	err        error
}

// NewBuilder returns a Builder that executes statements through adapter.
func NewBuilder(ctx context.Context, adapter connector.Adapter) *Builder {
	return &Builder{ctx: ctx, adapter: adapter}
}

// NewPretendBuilder returns a Builder that only records statements.
func NewPretendBuilder(ctx context.Context, adapter connector.Adapter) *Builder {
	return &Builder{ctx: ctx, adapter: adapter, pretend: true}
}

// Pretending reports whether statements are recorded instead of run.
func (b *Builder) Pretending() bool { return b.pretend }

// Statements returns every statement issued so far, in order.
func (b *Builder) Statements() []string { return b.statements }

// Err returns the first error encountered, if any.
func (b *Builder) Err() error { return b.err }

// Create creates a new table from the columns and indexes fn declares.
func (b *Builder) Create(table string, fn func(t *Blueprint)) {
	if b.err != nil {
		return
	}
	bp := newBlueprint(table, true)
	fn(bp)
	def, err := bp.tableSchema()
	if err != nil {
		b.fail(err)
		return
	}
	b.exec(b.adapter.CreateTableSQL(table, def)...)
}

// Table alters an existing table. Commands run in the order fn declares them.
func (b *Builder) Table(table string, fn func(t *Blueprint)) {
	if b.err != nil {
		return
	}
	bp := newBlueprint(table, false)
	fn(bp)
	for _, cmd := range bp.commands {
		stmts, err := cmd.compile(b.ctx, b.adapter, table)
		if err != nil {
			b.fail(fmt.Errorf("table %q: %w", table, err))
			return
		}
		b.exec(stmts...)
		if b.err != nil {
			return
		}
	}
}

// Drop drops a table.
func (b *Builder) Drop(table string) {
	if b.err != nil {
		return
	}
	b.exec(b.adapter.DropTableSQL(table, false))
}

// DropIfExists drops a table if it exists.
func (b *Builder) DropIfExists(table string) {
	if b.err != nil {
		return
	}
	b.exec(b.adapter.DropTableSQL(table, true))
}

// Rename renames a table.
func (b *Builder) Rename(from, to string) {
	if b.err != nil {
		return
	}
	b.exec(b.adapter.RenameTableSQL(from, to))
}

// Statement runs a raw SQL statement.
func (b *Builder) Statement(sql string) {
	if b.err != nil {
		return
	}
	b.exec(sql)
}

// HasTable reports whether the table exists. A lookup failure is recorded
// as the Builder's error and reported as false.
func (b *Builder) HasTable(table string) bool {
	if b.err != nil {
		return false
	}
	ok, err := b.adapter.TableExists(b.ctx, table)
	if err != nil {
		b.fail(err)
		return false
	}
	return ok
}

// HasColumn reports whether the table has the column.
func (b *Builder) HasColumn(table, column string) bool {
	if b.err != nil {
		return false
	}
	ok, err := b.adapter.ColumnExists(b.ctx, table, column)
	if err != nil {
		b.fail(err)
		return false
	}
	return ok
}

// exec runs one operation's statements. Adapters that can run a plan
// atomically get it as a single batch, so a table rebuild never stops
// half way.
func (b *Builder) exec(stmts ...string) {
	plan := make([]string, 0, len(stmts))
	for _, stmt := range stmts {
		if stmt != "" {
			plan = append(plan, stmt)
		}
	}
	b.statements = append(b.statements, plan...)
	if b.pretend || len(plan) == 0 {
		return
	}

	if batch, ok := b.adapter.(connector.BatchExecutor); ok && len(plan) > 1 {
		if err := batch.ExecuteBatch(b.ctx, plan); err != nil {
			b.fail(err)
		}
		return
	}
	for _, stmt := range plan {
		if err := b.adapter.Execute(b.ctx, stmt); err != nil {
			b.fail(err)
			return
		}
	}
}

func (b *Builder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}
