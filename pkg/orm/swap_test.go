package orm

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// fixedBackupName makes backup table names predictable for one test.
func fixedBackupName(t *testing.T) {
	t.Helper()
	orig := backupName
	backupName = func(table string) string { return table + "_backup" }
	t.Cleanup(func() { backupName = orig })
}

func TestBackupName(t *testing.T) {
	a, b := backupName("users"), backupName("users")
	if !strings.HasPrefix(a, "users_backup_") || len(a) != len("users_backup_")+8 || a == b {
		t.Errorf("\ngot %q and %q, wanted two distinct users_backup_ names", a, b)
	}
	if !isBackupTable(a) {
		t.Errorf("\n%q should be recognized as a backup table", a)
	}
	for _, name := range []string{"users", "users_backup", "users_backup_notahex!", "users_backup_1a2b3c4d5", "_backup_1a2b3c4d"} {
		if isBackupTable(name) {
			t.Errorf("\n%q should not be recognized as a backup table", name)
		}
	}
}

func TestSwapTransitions(t *testing.T) {
	fixedBackupName(t)
	ctx := context.Background()
	s, _, users := loadUsers(t)

	sw := users.NewSwap()
	if sw.BackupName() != "users_backup" || sw.State() != SwapPending {
		t.Fatalf("\ngot %s in state %v", sw.BackupName(), sw.State())
	}
	if err := sw.Commit(ctx); !errors.Is(err, ErrInvalidState) {
		t.Errorf("\ngot %v committing a pending swap, wanted %v", err, ErrInvalidState)
	}
	if err := sw.Rollback(ctx); !errors.Is(err, ErrInvalidState) {
		t.Errorf("\ngot %v rolling back a pending swap, wanted %v", err, ErrInvalidState)
	}
	if err := sw.Backup(ctx); err != nil || sw.State() != SwapBackedUp {
		t.Fatalf("\nbackup: %v (%v)", err, sw.State())
	}
	if err := sw.Backup(ctx); !errors.Is(err, ErrInvalidState) {
		t.Errorf("\ngot %v backing up twice, wanted %v", err, ErrInvalidState)
	}
	if err := sw.Replace(ctx, func(context.Context) error { return nil }); err != nil || sw.State() != SwapReplaced {
		t.Fatalf("\nreplace: %v (%v)", err, sw.State())
	}
	if err := sw.Commit(ctx); err != nil || sw.State() != SwapCommitted {
		t.Fatalf("\ncommit: %v (%v)", err, sw.State())
	}

	want := []string{
		"CREATE TABLE `users_backup` LIKE `users`",
		"INSERT INTO `users_backup` SELECT * FROM `users`",
		"DROP TABLE `users_backup`",
	}
	if got := s.execs(); !equalStrings(got, want) {
		t.Errorf("\ngot %q, wanted %q", got, want)
	}
	if sw.State().String() != "committed" || SwapBackedUp.String() != "backed-up" {
		t.Errorf("\nunexpected state names %s %s", sw.State(), SwapBackedUp)
	}
}

func TestSwapRollback(t *testing.T) {
	fixedBackupName(t)
	ctx := context.Background()
	s, _, users := loadUsers(t)

	sw := users.NewSwap()
	if err := sw.Backup(ctx); err != nil {
		t.Fatalf("\nbackup: %v", err)
	}
	boom := errors.New("boom")
	if err := sw.Replace(ctx, func(context.Context) error { return boom }); !errors.Is(err, boom) {
		t.Errorf("\ngot %v, wanted %v", err, boom)
	}
	if sw.State() != SwapBackedUp {
		t.Errorf("\nfailed replace moved the swap to %v", sw.State())
	}
	if err := sw.Rollback(ctx); err != nil || sw.State() != SwapRolledBack {
		t.Fatalf("\nrollback: %v (%v)", err, sw.State())
	}
	want := []string{
		"CREATE TABLE `users_backup` LIKE `users`",
		"INSERT INTO `users_backup` SELECT * FROM `users`",
		"DROP TABLE IF EXISTS `users`",
		"CREATE TABLE `users` LIKE `users_backup`",
		"INSERT INTO `users` SELECT * FROM `users_backup`",
		"DROP TABLE `users_backup`",
	}
	if got := s.execs(); !equalStrings(got, want) {
		t.Errorf("\ngot %q, wanted %q", got, want)
	}
	if users.State() != StateUnchanged {
		t.Errorf("\nreverted table should be reloaded, got %v", users.State())
	}
}

func TestSwapRollbackFailure(t *testing.T) {
	fixedBackupName(t)
	ctx := context.Background()
	s, _, users := loadUsers(t)
	s.failOn("CREATE TABLE `users` LIKE")

	sw := users.NewSwap()
	if err := sw.Backup(ctx); err != nil {
		t.Fatalf("\nbackup: %v", err)
	}
	if err := sw.Rollback(ctx); !errors.Is(err, ErrSchema) || sw.State() != SwapFailed {
		t.Errorf("\ngot %v (%v), wanted a schema error and a failed swap", err, sw.State())
	}
	for _, q := range s.execs() {
		if q == "DROP TABLE `users_backup`" {
			t.Errorf("\nbackup dropped after a failed rollback")
		}
	}
}

func TestGuardedSchemaImport(t *testing.T) {
	fixedBackupName(t)
	ctx := context.Background()
	s, _, users := loadUsers(t)
	s.failOn("CREATE TABLE `users` (")

	err := users.ImportSchema(ctx, strings.NewReader("CREATE TABLE `users` (`id` INT NOT NULL);\n"), FormatSQL)
	if !errors.Is(err, ErrImportExport) {
		t.Fatalf("\ngot %v, wanted %v", err, ErrImportExport)
	}
	want := []string{
		"CREATE TABLE `users_backup` LIKE `users`",
		"INSERT INTO `users_backup` SELECT * FROM `users`",
		"DROP TABLE `users`",
		"CREATE TABLE `users` (`id` INT NOT NULL)",
		"DROP TABLE IF EXISTS `users`",
		"CREATE TABLE `users` LIKE `users_backup`",
		"INSERT INTO `users` SELECT * FROM `users_backup`",
		"DROP TABLE `users_backup`",
	}
	if got := s.execs(); !equalStrings(got, want) {
		t.Errorf("\ngot %q, wanted %q", got, want)
	}
}

func TestGuardedImportRollbackFailure(t *testing.T) {
	fixedBackupName(t)
	ctx := context.Background()
	s, _, users := loadUsers(t)
	s.failOn("CREATE TABLE `users` (")
	s.failOn("CREATE TABLE `users` LIKE")

	err := users.ImportSchema(ctx, strings.NewReader("CREATE TABLE `users` (`id` INT NOT NULL);"), FormatSQL)
	if !errors.Is(err, ErrImportExport) || !errors.Is(err, ErrSchema) {
		t.Errorf("\ngot %v, wanted the import failure joined with the rollback failure", err)
	}
	if !strings.Contains(err.Error(), "users_backup") {
		t.Errorf("\nerror should name the kept backup: %v", err)
	}
}

func TestCorruptSourceTouchesNothing(t *testing.T) {
	ctx := context.Background()
	var tests = []struct {
		name   string
		format Format
		source string
		schema bool
	}{
		{"unterminated sql string", FormatSQL, "CREATE TABLE `users` (`id` INT DEFAULT 'x);", true},
		{"sql for another table", FormatSQL, "CREATE TABLE `posts` (`id` INT);", true},
		{"bad csv header", FormatCSV, "a,b\n1,2\n", true},
		{"broken xml", FormatXML, "<table name=\"users\"><columns>", true},
		{"unknown type", FormatYAML, "table:\n  name: users\n  columns:\n    - name: id\n      type: money\n", true},
		{"unknown data column", FormatCSV, "id,nick\n1,ann\n", false},
		{"ragged yaml", FormatYAML, "table: users\nrecords: 5\n", false},
		{"insert into another table", FormatSQL, "INSERT INTO `posts` VALUES (1);", false},
	}

	for _, tt := range tests {
		// Use t.Run to run each case as a subtest with a descriptive name
		t.Run(tt.name, func(t *testing.T) {
			s, _, users := loadUsers(t)
			var err error
			if tt.schema {
				err = users.ImportSchema(ctx, strings.NewReader(tt.source), tt.format)
			} else {
				err = users.ImportData(ctx, strings.NewReader(tt.source), tt.format)
			}
			if !errors.Is(err, ErrImportExport) {
				t.Errorf("\ngot %v, wanted %v", err, ErrImportExport)
			}
			if got := s.execs(); len(got) != 0 {
				t.Errorf("\ncorrupt source changed storage: %q", got)
			}
		})
	}
}
