package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"

	"github.com/RogWilco/Bedrock-Framework-sub000/internal/introspect"
	"github.com/RogWilco/Bedrock-Framework-sub000/pkg/config"
)

// ErrTableNotFound is returned by an Extractor when the named table or view
// does not exist in the connected schema.
var ErrTableNotFound = errors.New("table not found")

// Querier is implemented by *sql.DB, *sql.Tx and *sql.Conn.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type Extractor interface {

	// Tables lists the status row of every table and view in the connected schema.
	Tables(ctx context.Context, q Querier) ([]introspect.TableStatus, error)

	// Table returns the status row and the full column listing of one table.
	// It returns ErrTableNotFound when the table does not exist.
	Table(ctx context.Context, q Querier, name string) (introspect.Table, error)
}

var dialects = map[string]Extractor{}

// Register makes an Extractor available under name.
func Register(name string, e Extractor) {
	dialects[strings.ToLower(name)] = e
}

// listRegistered returns the registered dialect keys (for diagnostics).
func listRegistered() []string {
	keys := make([]string, 0, len(dialects))
	for k := range dialects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Lookup returns the Extractor registered for driver.
func Lookup(driver string) (Extractor, error) {
	driver = config.NormalizeDriver(driver)
	extractor, ok := dialects[driver]
	if !ok {
		return nil, fmt.Errorf("dialect not registered: %q (available: %v)", driver, listRegistered())
	}
	return extractor, nil
}

// Connect opens the database and verifies it answers within timeoutSec.
// The handle is pinned to a single connection.
func Connect(driver, dsn string, timeoutSec int) (*sql.DB, error) {
	driver = config.NormalizeDriver(driver)
	if _, err := Lookup(driver); err != nil {
		return nil, err
	}
	dbConn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	dbConn.SetMaxOpenConns(1)
	dbConn.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeoutSec)*time.Second)
	defer cancel()
	if err := dbConn.PingContext(ctx); err != nil {
		dbConn.Close()
		return nil, err
	}
	return dbConn, nil
}

// RegisteredDialects is a helper that allows main to print registered dialects
func RegisteredDialects() []string {
	return listRegistered()
}
