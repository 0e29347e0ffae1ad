package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/ulikunitz/xz"

	"github.com/RogWilco/Bedrock-Framework-sub000/internal/logger"
	"github.com/RogWilco/Bedrock-Framework-sub000/pkg/config"
	"github.com/RogWilco/Bedrock-Framework-sub000/pkg/orm"
)

// Globals are the connection flags shared by every command.
type Globals struct {
	Config   string   `help:"Path to config YAML." default:"configs/bedrock.yaml" type:"path"`
	Env      []string `help:"Dotenv files applied over the config." default:".env"`
	Driver   string   `help:"Database driver override (mysql, postgres)."`
	DSN      string   `name:"dsn" help:"DSN override."`
	Timeout  int      `help:"Connect timeout in seconds." default:"10"`
	LogLevel string   `name:"log-level" help:"Log level (debug, info, warn, error)."`
}

var cli struct {
	Globals `embed:""`

	Tables TablesCmd `cmd:"" help:"List tables with their kind and mappings."`
	Export struct {
		Schema ExportSchemaCmd `cmd:"" help:"Export table definitions."`
		Data   ExportDataCmd   `cmd:"" help:"Export table rows."`
	} `cmd:"" help:"Export definitions or rows."`
	Import struct {
		Schema ImportSchemaCmd `cmd:"" help:"Create or replace tables from a definition file."`
		Data   ImportDataCmd   `cmd:"" help:"Replace table rows from a data file."`
	} `cmd:"" help:"Import definitions or rows. Existing tables are backed up and restored on failure."`
}

// resolve merges the config file, dotenv files and flag overrides.
func (g *Globals) resolve() (config.AppConfig, error) {
	var cfg config.AppConfig
	if g.Config != "" {
		c, err := config.LoadFile(g.Config)
		switch {
		case err == nil:
			cfg = c
		case errors.Is(err, fs.ErrNotExist):
			logger.Debug("config file %s not found", g.Config)
		default:
			return cfg, fmt.Errorf("read config %s: %w", g.Config, err)
		}
	}
	cfg, err := config.LoadEnv(cfg, g.Env...)
	if err != nil {
		return cfg, err
	}

	if g.Driver != "" {
		cfg.Database.Type = g.Driver
	}
	// an explicit DSN replaces the discrete connection fields
	if g.DSN != "" {
		cfg.Database = config.DBConfig{Type: cfg.Database.Type, DSN: g.DSN, DatabaseName: cfg.Database.DatabaseName}
	}
	if g.LogLevel != "" {
		cfg.Log.Level = g.LogLevel
	}
	if cfg.Database.Type == "" {
		return cfg, errors.New("no database configured: set --driver and --dsn or a config file")
	}
	return cfg, nil
}

func (g *Globals) open() (*orm.Database, error) {
	cfg, err := g.resolve()
	if err != nil {
		return nil, err
	}
	logger.SetLevel(cfg.Log.Level)
	return orm.Open(cfg.Database, g.Timeout)
}

// TablesCmd lists the tables and views of the database.
type TablesCmd struct{}

func (c *TablesCmd) Run(g *Globals) error {
	d, err := g.open()
	if err != nil {
		return err
	}
	defer d.Close()
	if err := d.Load(context.Background()); err != nil {
		return err
	}
	for _, t := range d.Tables() {
		fmt.Printf("%-30s %-8s %s\n", t.Name(), t.Kind(), mappingSummary(t.Mappings()))
	}
	return nil
}

func mappingSummary(m orm.Mappings) string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = name + ":" + m[name].String()
	}
	return strings.Join(parts, " ")
}

// Transfer holds the flags common to the import and export commands.
type Transfer struct {
	Table  string `short:"t" help:"Limit to one table."`
	Format string `short:"f" help:"sql, xml, yaml or csv. Defaults to the file extension."`
}

func (t Transfer) format(path string) (orm.Format, error) {
	return formatFor(t.Format, path)
}

// formatFor picks name, or the extension of path with any .xz suffix
// removed. SQL is the fallback.
func formatFor(name, path string) (orm.Format, error) {
	if name == "" {
		name = strings.TrimPrefix(filepath.Ext(strings.TrimSuffix(path, ".xz")), ".")
	}
	if name == "" {
		return orm.FormatSQL, nil
	}
	return orm.ParseFormat(name)
}

type ExportSchemaCmd struct {
	Transfer
	Out string `short:"o" default:"-" help:"Output file, - for stdout. A .xz suffix compresses."`
}

func (c *ExportSchemaCmd) Run(g *Globals) error {
	return export(g, c.Transfer, c.Out, func(ctx context.Context, d *orm.Database, w io.Writer, f orm.Format) error {
		if c.Table == "" {
			return d.ExportTableSchemas(ctx, w, f)
		}
		t, err := d.Get(ctx, c.Table)
		if err != nil {
			return err
		}
		return t.ExportSchema(w, f)
	})
}

type ExportDataCmd struct {
	Transfer
	Out string `short:"o" default:"-" help:"Output file, - for stdout. A .xz suffix compresses."`
}

func (c *ExportDataCmd) Run(g *Globals) error {
	return export(g, c.Transfer, c.Out, func(ctx context.Context, d *orm.Database, w io.Writer, f orm.Format) error {
		if c.Table == "" {
			return d.ExportTableData(ctx, w, f)
		}
		t, err := d.Get(ctx, c.Table)
		if err != nil {
			return err
		}
		return t.ExportData(ctx, w, f)
	})
}

func export(g *Globals, tr Transfer, out string, run func(context.Context, *orm.Database, io.Writer, orm.Format) error) error {
	f, err := tr.format(out)
	if err != nil {
		return err
	}
	d, err := g.open()
	if err != nil {
		return err
	}
	defer d.Close()
	w, closeOut, err := openOutput(out)
	if err != nil {
		return err
	}
	if err := run(context.Background(), d, w, f); err != nil {
		closeOut()
		return err
	}
	if err := closeOut(); err != nil {
		return err
	}
	logger.Info("exported %s as %s to %s", orDatabase(tr.Table, d), f, out)
	return nil
}

type ImportSchemaCmd struct {
	Transfer
	In string `arg:"" help:"Input file, - for stdin. A .xz suffix decompresses."`
}

func (c *ImportSchemaCmd) Run(g *Globals) error {
	return importFrom(g, c.Transfer, c.In, func(ctx context.Context, d *orm.Database, r io.Reader, f orm.Format) error {
		if c.Table == "" {
			return d.ImportTableSchemas(ctx, r, f)
		}
		t, err := d.Get(ctx, c.Table)
		if errors.Is(err, orm.ErrTableNotFound) {
			t, err = d.NewTable(c.Table), nil
		}
		if err != nil {
			return err
		}
		return t.ImportSchema(ctx, r, f)
	})
}

type ImportDataCmd struct {
	Transfer
	In string `arg:"" help:"Input file, - for stdin. A .xz suffix decompresses."`
}

func (c *ImportDataCmd) Run(g *Globals) error {
	return importFrom(g, c.Transfer, c.In, func(ctx context.Context, d *orm.Database, r io.Reader, f orm.Format) error {
		if c.Table == "" {
			return d.ImportTableData(ctx, r, f)
		}
		t, err := d.Get(ctx, c.Table)
		if err != nil {
			return err
		}
		return t.ImportData(ctx, r, f)
	})
}

func importFrom(g *Globals, tr Transfer, in string, run func(context.Context, *orm.Database, io.Reader, orm.Format) error) error {
	f, err := tr.format(in)
	if err != nil {
		return err
	}
	r, closeIn, err := openInput(in)
	if err != nil {
		return err
	}
	defer closeIn()
	d, err := g.open()
	if err != nil {
		return err
	}
	defer d.Close()
	if err := run(context.Background(), d, r, f); err != nil {
		return err
	}
	logger.Info("imported %s into %s", in, orDatabase(tr.Table, d))
	return nil
}

func orDatabase(table string, d *orm.Database) string {
	if table != "" {
		return table
	}
	return d.Name()
}

// openInput opens path for reading; "-" is stdin.
func openInput(path string) (io.Reader, func() error, error) {
	var r io.Reader = os.Stdin
	closeFn := func() error { return nil }
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, nil, err
		}
		r, closeFn = f, f.Close
	}
	if strings.HasSuffix(path, ".xz") {
		xr, err := xz.NewReader(r)
		if err != nil {
			closeFn()
			return nil, nil, fmt.Errorf("open %s: %w", path, err)
		}
		r = xr
	}
	return r, closeFn, nil
}

// openOutput opens path for writing; "-" is stdout. The returned close
// function flushes the compressor before closing the file.
func openOutput(path string) (io.Writer, func() error, error) {
	var w io.Writer = os.Stdout
	closeFile := func() error { return nil }
	if path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return nil, nil, err
		}
		w, closeFile = f, f.Close
	}
	if !strings.HasSuffix(path, ".xz") {
		return w, closeFile, nil
	}
	xw, err := xz.NewWriter(w)
	if err != nil {
		closeFile()
		return nil, nil, fmt.Errorf("create %s: %w", path, err)
	}
	return xw, func() error {
		if err := xw.Close(); err != nil {
			closeFile()
			return err
		}
		return closeFile()
	}, nil
}

func main() {
	ctx := kong.Parse(&cli,
		kong.Name("bedrock"),
		kong.Description("Inspect, export and import schema-mapped databases."),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
		kong.Bind(&cli.Globals),
	)
	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}
