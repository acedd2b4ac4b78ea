// Command yarrd is the REPL/CLI collaborator of spec.md §4.10: a
// line-editing shell over internal/dbcatalog, internal/sqlfront and
// internal/executor.
//
// Grounded on the pack's cmd/sloty REPL (liner session, history file,
// command dispatch loop) and the teacher's cmd/godb-server/main.go
// (meta-command prefix ".", buffered handling of one statement per
// Enter), generalized from the teacher's single always-open store to
// the connect/close lifecycle of spec.md §6.
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/pflag"

	"github.com/daniilsunyaev/yarrd/internal/config"
	"github.com/daniilsunyaev/yarrd/internal/dbcatalog"
	"github.com/daniilsunyaev/yarrd/internal/executor"
	"github.com/daniilsunyaev/yarrd/internal/index"
	"github.com/daniilsunyaev/yarrd/internal/pager"
	"github.com/daniilsunyaev/yarrd/internal/sqlfront"
	"github.com/daniilsunyaev/yarrd/internal/table"
	"github.com/daniilsunyaev/yarrd/internal/types"
)

func main() {
	os.Exit(run())
}

func run() int {
	dbPath := pflag.String("db", "", "database root file to .connect on startup")
	cachePages := pflag.Int("cache-pages", 0, "pager cache capacity override (pages per open file)")
	configPath := pflag.String("config", config.FileName, "path to yarrd.jsonc")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		return 1
	}
	pager.CacheCapacity = cfg.PagerCacheSize
	if *cachePages > 0 {
		pager.CacheCapacity = *cachePages
	}
	if cfg.IndexInitialBuckets > 0 {
		index.InitialBuckets = uint64(cfg.IndexInitialBuckets)
	}

	r := &repl{}
	if *dbPath != "" {
		if err := r.connect(*dbPath); err != nil {
			fmt.Fprintln(os.Stderr, "connect:", err)
		}
	}
	return r.run()
}

// repl is the interactive command loop and the single seam between a
// connected *dbcatalog.Database and the SQL front end.
type repl struct {
	line *liner.State
	db   *dbcatalog.Database
	exec *executor.Executor
}

func historyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".yarrd_history")
}

func (r *repl) run() int {
	r.line = liner.NewLiner()
	defer r.line.Close()
	r.line.SetCtrlCAborts(true)

	if f, err := os.Open(historyPath()); err == nil {
		r.line.ReadHistory(f)
		f.Close()
	}

	fmt.Println("yarrd - type SQL statements or a metacommand (.help for a list)")

	exitCode := 0
	for {
		prompt := "yarrd> "
		if r.db != nil {
			prompt = "yarrd (connected)> "
		}
		line, err := r.line.Prompt(prompt)
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				break
			}
			fmt.Fprintln(os.Stderr, "read error:", err)
			exitCode = 1
			break
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		r.line.AppendHistory(line)

		if strings.HasPrefix(line, ".") {
			if stop := r.handleMeta(line); stop {
				break
			}
			continue
		}

		r.handleSQL(line)
	}

	if err := r.closeIfConnected(); err != nil {
		fmt.Fprintln(os.Stderr, "close:", err)
		exitCode = 1
	}
	r.saveHistory()
	return exitCode
}

func (r *repl) saveHistory() {
	path := historyPath()
	if path == "" {
		return
	}
	if f, err := os.Create(path); err == nil {
		r.line.WriteHistory(f)
		f.Close()
	}
}

func (r *repl) handleMeta(line string) (stop bool) {
	fields := strings.Fields(line)
	cmd := strings.ToLower(fields[0])
	args := fields[1:]

	switch cmd {
	case ".exit", ".quit":
		return true

	case ".help":
		printHelp()

	case ".createdb":
		r.cmdCreateDB(args)

	case ".dropdb":
		r.cmdDropDB(args)

	case ".connect":
		if len(args) != 1 {
			fmt.Println("usage: .connect PATH")
			return false
		}
		if err := r.connect(args[0]); err != nil {
			fmt.Println("error:", err)
		}

	case ".close":
		if err := r.closeIfConnected(); err != nil {
			fmt.Println("error:", err)
		}

	case ".tables":
		r.cmdTables()

	case ".schema":
		r.cmdSchema(args)

	default:
		fmt.Printf("unknown metacommand %q (.help for a list)\n", cmd)
	}
	return false
}

func printHelp() {
	fmt.Println("Metacommands:")
	fmt.Println("  .createdb PATH [TABLES_DIR]   Create a new database")
	fmt.Println("  .dropdb PATH                  Remove a database (must be disconnected)")
	fmt.Println("  .connect PATH                 Connect to a database")
	fmt.Println("  .close                        Flush and disconnect")
	fmt.Println("  .tables                       List tables in the connected database")
	fmt.Println("  .schema TABLE                 Show a table's columns and indexes")
	fmt.Println("  .exit / .quit                 Close then terminate")
	fmt.Println()
	fmt.Println("Otherwise, the line is parsed as one SQL statement:")
	fmt.Println("  CREATE TABLE, DROP TABLE, INSERT, SELECT, UPDATE, DELETE,")
	fmt.Println("  ALTER TABLE, VACUUM, CREATE INDEX, DROP INDEX")
}

func (r *repl) connect(path string) error {
	if r.db != nil {
		return fmt.Errorf("already connected; .close first")
	}
	db, err := dbcatalog.Connect(path)
	if err != nil {
		return err
	}
	r.db = db
	r.exec = executor.New(db)
	return nil
}

func (r *repl) closeIfConnected() error {
	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	r.exec = nil
	return err
}

func (r *repl) cmdCreateDB(args []string) {
	if len(args) < 1 || len(args) > 2 {
		fmt.Println("usage: .createdb PATH [TABLES_DIR]")
		return
	}
	tablesDir := ""
	if len(args) == 2 {
		tablesDir = args[1]
	}
	if err := dbcatalog.CreateDatabase(args[0], tablesDir); err != nil {
		fmt.Println("error:", err)
	}
}

func (r *repl) cmdDropDB(args []string) {
	if len(args) != 1 {
		fmt.Println("usage: .dropdb PATH")
		return
	}
	if r.db != nil {
		fmt.Println("error: disconnect with .close before .dropdb")
		return
	}
	if err := dbcatalog.DropDatabase(args[0]); err != nil {
		fmt.Println("error:", err)
	}
}

func (r *repl) cmdTables() {
	if r.db == nil {
		fmt.Println("error: not connected")
		return
	}
	names, err := r.db.AllTableNames()
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	if len(names) == 0 {
		fmt.Println("(no tables)")
		return
	}
	for _, name := range names {
		fmt.Println(name)
	}
}

func (r *repl) cmdSchema(args []string) {
	if r.db == nil {
		fmt.Println("error: not connected")
		return
	}
	if len(args) != 1 {
		fmt.Println("usage: .schema TABLE")
		return
	}
	t, err := r.db.Table(args[0])
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	printSchema(t)
}

func printSchema(t *table.Table) {
	schema := t.Schema()
	fmt.Printf("%s:\n", schema.TableName)
	for _, col := range schema.Columns {
		fmt.Printf("  %-20s %s\n", col.Name, col.Type)
	}
	for _, ix := range schema.Indexes {
		fmt.Printf("  INDEX ON %s\n", ix.Column)
	}
}

func (r *repl) handleSQL(line string) {
	if r.exec == nil {
		fmt.Println("error: not connected (.connect PATH first)")
		return
	}
	stmt, err := sqlfront.Parse(line)
	if err != nil {
		fmt.Println("parse error:", err)
		return
	}
	result, err := r.exec.Execute(stmt)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	if result != nil {
		printResult(result)
	} else {
		fmt.Println("OK")
	}
}

func printResult(res *table.QueryResult) {
	fmt.Println(strings.Join(res.ColumnNames, "\t"))
	for _, row := range res.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = formatValue(v)
		}
		fmt.Println(strings.Join(cells, "\t"))
	}
	fmt.Printf("(%d row(s))\n", len(res.Rows))
}

func formatValue(v types.Value) string {
	if v.IsNull {
		return "NULL"
	}
	switch v.Type {
	case types.Integer:
		return fmt.Sprintf("%d", v.I)
	case types.Float:
		return fmt.Sprintf("%g", v.F)
	case types.String:
		return v.S
	default:
		return ""
	}
}
