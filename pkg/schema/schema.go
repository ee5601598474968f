// Package schema provisions the tables queried by the relational repositories. Scripts
// are idempotent DDL (CREATE ... IF NOT EXISTS) applied as a whole; there is no version
// history and nothing is ever dropped.
package schema

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strings"
	"text/template"

	"github.com/nimburion/catalog/pkg/observability/logger"
	"github.com/nimburion/catalog/pkg/repository/relational"
)

// Script is one DDL file. Statements are separated by semicolons.
type Script struct {
	Name string
	SQL  string
}

// Statements splits the script into its non-empty statements.
func (s Script) Statements() []string {
	var statements []string
	for _, stmt := range strings.Split(s.SQL, ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			statements = append(statements, stmt)
		}
	}
	return statements
}

// Report is the outcome of Check for one table. A table that does not exist reports
// every expected column as missing.
type Report struct {
	Table   string   `json:"table"`
	Missing []string `json:"missing,omitempty"`
}

// OK reports whether every expected column exists.
func (r Report) OK() bool { return len(r.Missing) == 0 }

// Provisioner applies DDL scripts to one database.
type Provisioner struct {
	db      *sql.DB
	dialect relational.Dialect
	scripts []Script
	logger  logger.Logger
}

// NewProvisioner loads the *.sql files of dir in name order. dir must hold at least one.
// Each file is a text/template executed with vars, so {{.Table}} expands to vars["Table"];
// referencing a key missing from vars is an error.
func NewProvisioner(db *sql.DB, dialect relational.Dialect, files fs.FS, dir string, vars map[string]string, log logger.Logger) (*Provisioner, error) {
	if db == nil {
		return nil, errors.New("database handle is required")
	}
	if files == nil {
		return nil, errors.New("schema filesystem is required")
	}
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("schema directory is required")
	}
	if dialect == "" {
		dialect = relational.DialectPostgres
	}
	if log == nil {
		log = logger.NewNop()
	}

	scripts, err := loadScripts(files, dir, vars)
	if err != nil {
		return nil, err
	}
	return &Provisioner{db: db, dialect: dialect, scripts: scripts, logger: log}, nil
}

// Dialect returns the SQL dialect the scripts are written for.
func (p *Provisioner) Dialect() relational.Dialect { return p.dialect }

// Scripts returns the loaded scripts in apply order.
func (p *Provisioner) Scripts() []Script {
	return slices.Clone(p.scripts)
}

// Apply runs every statement of every script in order and returns how many ran. It
// stops at the first failure. DDL is not transactional in MySQL, so statements run on
// their own and a rerun picks up where a failed one stopped.
func (p *Provisioner) Apply(ctx context.Context) (int, error) {
	executed := 0
	for _, script := range p.scripts {
		for i, stmt := range script.Statements() {
			if _, err := p.db.ExecContext(ctx, stmt); err != nil {
				return executed, fmt.Errorf("apply %s statement %d: %w", script.Name, i+1, err)
			}
			executed++
		}
		p.logger.Debug("schema script applied", "script", script.Name, "dialect", string(p.dialect))
	}
	p.logger.Info("schema applied", "scripts", len(p.scripts), "statements", executed)
	return executed, nil
}

// Check compares the columns of table in the current schema with columns.
func (p *Provisioner) Check(ctx context.Context, table string, columns []string) (Report, error) {
	query := fmt.Sprintf(`SELECT column_name FROM information_schema.columns WHERE table_schema = %s AND table_name = %s`,
		p.currentSchema(), p.dialect.Placeholder(1))
	rows, err := p.db.QueryContext(ctx, query, table)
	if err != nil {
		return Report{}, fmt.Errorf("read columns of %s: %w", table, err)
	}
	defer rows.Close()

	present := make(map[string]struct{})
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return Report{}, fmt.Errorf("scan column of %s: %w", table, err)
		}
		present[strings.ToLower(name)] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return Report{}, fmt.Errorf("iterate columns of %s: %w", table, err)
	}

	report := Report{Table: table}
	for _, column := range columns {
		if _, ok := present[strings.ToLower(column)]; !ok {
			report.Missing = append(report.Missing, column)
		}
	}
	return report, nil
}

func (p *Provisioner) currentSchema() string {
	if p.dialect == relational.DialectMySQL {
		return "DATABASE()"
	}
	return "current_schema()"
}

func loadScripts(files fs.FS, dir string, vars map[string]string) ([]Script, error) {
	entries, err := fs.ReadDir(files, dir)
	if err != nil {
		return nil, fmt.Errorf("read schema directory: %w", err)
	}

	var scripts []Script
	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".sql" {
			continue
		}
		payload, err := fs.ReadFile(files, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read schema file %q: %w", entry.Name(), err)
		}
		rendered, err := render(entry.Name(), string(payload), vars)
		if err != nil {
			return nil, err
		}
		script := Script{Name: entry.Name(), SQL: rendered}
		if len(script.Statements()) == 0 {
			return nil, fmt.Errorf("schema file %q is empty", entry.Name())
		}
		scripts = append(scripts, script)
	}
	if len(scripts) == 0 {
		return nil, fmt.Errorf("no schema scripts in %s", dir)
	}
	return scripts, nil
}

func render(name, text string, vars map[string]string) (string, error) {
	tmpl, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return "", fmt.Errorf("parse schema file %q: %w", name, err)
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, vars); err != nil {
		return "", fmt.Errorf("render schema file %q: %w", name, err)
	}
	return b.String(), nil
}
