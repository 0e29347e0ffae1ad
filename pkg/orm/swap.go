package orm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/RogWilco/Bedrock-Framework-sub000/internal/logger"
)

// SwapState is the progress of a guarded table replacement.
type SwapState int

const (
	SwapPending SwapState = iota
	SwapBackedUp
	SwapReplaced
	SwapCommitted
	SwapRolledBack
	SwapFailed
)

func (s SwapState) String() string {
	switch s {
	case SwapBackedUp:
		return "backed-up"
	case SwapReplaced:
		return "replaced"
	case SwapCommitted:
		return "committed"
	case SwapRolledBack:
		return "rolled-back"
	case SwapFailed:
		return "failed"
	default:
		return "pending"
	}
}

// backupName returns a fresh backup table name for table.
var backupName = func(table string) string {
	return table + "_backup_" + uuid.New().String()[:8]
}

// isBackupTable reports whether name looks like a backupName result. Such
// tables keep the comment of their source and are skipped when resolving
// mappings.
func isBackupTable(name string) bool {
	i := strings.LastIndex(name, "_backup_")
	if i <= 0 || len(name)-i-len("_backup_") != 8 {
		return false
	}
	for _, r := range name[i+len("_backup_"):] {
		if !strings.ContainsRune("0123456789abcdef", r) {
			return false
		}
	}
	return true
}

// Swap replaces the contents or definition of a live table while keeping a
// full copy that Rollback restores:
//
//	Pending -> BackedUp -> Replaced -> Committed
//	BackedUp | Replaced -> RolledBack
//
// A failed Rollback leaves the swap Failed with the backup table in place.
type Swap struct {
	table   *Table
	backup  string
	restore []string
	state   SwapState
}

// NewSwap prepares a swap of t. Nothing is written until Backup.
func (t *Table) NewSwap() *Swap {
	return &Swap{table: t, backup: backupName(t.name)}
}

func (s *Swap) State() SwapState { return s.state }

func (s *Swap) BackupName() string { return s.backup }

func (s *Swap) expect(op string, states ...SwapState) error {
	for _, st := range states {
		if s.state == st {
			return nil
		}
	}
	return schemaErr(op, s.table.name, fmt.Errorf("%w: swap is %s", ErrInvalidState, s.state))
}

// Backup copies the live table, structure and rows, into the backup table.
func (s *Swap) Backup(ctx context.Context) error {
	if err := s.expect("backup", SwapPending); err != nil {
		return err
	}
	t := s.table
	restore, err := t.db.dialect.RestoreTable(t, s.backup)
	if err != nil {
		return schemaErr("backup", t.name, err)
	}
	if err := t.db.execAll(ctx, t.db.dialect.CopyTable(s.backup, t.name)); err != nil {
		return schemaErr("backup", t.name, err)
	}
	s.restore = restore
	s.state = SwapBackedUp
	logger.Info("backed up %s to %s", t.name, s.backup)
	return nil
}

// Replace runs fn, which rewrites the live table.
func (s *Swap) Replace(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := s.expect("replace", SwapBackedUp); err != nil {
		return err
	}
	if err := fn(ctx); err != nil {
		return err
	}
	s.state = SwapReplaced
	return nil
}

// Commit drops the backup table.
func (s *Swap) Commit(ctx context.Context) error {
	if err := s.expect("commit", SwapReplaced); err != nil {
		return err
	}
	t := s.table
	if err := t.db.execAll(ctx, []string{t.db.dialect.DropTable(s.backup, false)}); err != nil {
		return schemaErr("commit", t.name, err)
	}
	s.state = SwapCommitted
	return nil
}

// Rollback restores the live table from the backup.
func (s *Swap) Rollback(ctx context.Context) error {
	if err := s.expect("rollback", SwapBackedUp, SwapReplaced); err != nil {
		return err
	}
	if err := s.table.revert(ctx, s.backup, s.restore); err != nil {
		s.state = SwapFailed
		logger.Error("rollback of %s failed, backup kept in %s", s.table.name, s.backup)
		return err
	}
	s.state = SwapRolledBack
	return nil
}

// guard runs replace under a swap of t. Any failure after the backup
// triggers a rollback; the returned error carries both causes.
func (t *Table) guard(ctx context.Context, replace func(ctx context.Context) error) error {
	s := t.NewSwap()
	if err := s.Backup(ctx); err != nil {
		return err
	}
	err := s.Replace(ctx, replace)
	if err == nil {
		if err = t.Load(ctx); err == nil {
			return s.Commit(ctx)
		}
	}
	if rbErr := s.Rollback(ctx); rbErr != nil {
		return errors.Join(err, rbErr)
	}
	return err
}
