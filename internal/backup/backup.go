// Package backup dumps the whole database to a JSON file and restores it.
//
// A dump lists every table in parent-first order. Restores run in a single
// transaction: existing rows are deleted children first, then the dump is
// inserted parents first. Operational problems that only affect part of the
// data (a column that no longer exists, a table that cannot be read) are
// collected as warnings; problems with the file itself abort.
package backup

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/labelpizza/backend/internal/models"
	"github.com/labelpizza/backend/pkg/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// FormatVersion is written into every dump and checked on restore.
const FormatVersion = 1

const (
	filePrefix = "labelpizza_backup_"
	timeLayout = "20060102_150405"
	lockFile   = ".labelpizza_backup.lock"
	batchSize  = 200
)

// skipTables are transient and never dumped or restored.
var skipTables = map[string]bool{
	"scheduler_locks": true,
}

// ErrLocked is returned when another process holds the backup lock.
var ErrLocked = errors.New("another backup or restore is running")

// Dump is the on-disk backup document.
type Dump struct {
	Version   int         `json:"version"`
	CreatedAt time.Time   `json:"created_at"`
	Driver    string      `json:"driver"`
	Tables    []TableDump `json:"tables"`
}

type TableDump struct {
	Name string                   `json:"name"`
	Rows []map[string]interface{} `json:"rows"`
}

// Result summarises a backup or restore.
type Result struct {
	Path     string         `json:"path"`
	Rows     map[string]int `json:"rows"`
	Warnings []string       `json:"warnings,omitempty"`
	Duration time.Duration  `json:"duration"`
}

func (r *Result) TotalRows() int {
	n := 0
	for _, c := range r.Rows {
		n += c
	}
	return n
}

func (r *Result) warn(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	r.Warnings = append(r.Warnings, msg)
	logger.Warn().Msg("[Backup] " + msg)
}

// Service performs backups into, and restores from, a directory.
type Service struct {
	db  *gorm.DB
	dir string
}

func NewService(db *gorm.DB, dir string) *Service {
	if dir == "" {
		dir = "backups"
	}
	return &Service{db: db, dir: dir}
}

func (s *Service) Dir() string { return s.dir }

// FileName returns the name of a backup taken at t.
func FileName(t time.Time, compress bool) string {
	name := filePrefix + t.Format(timeLayout) + ".json"
	if compress {
		name += ".gz"
	}
	return name
}

// lock takes the directory lock shared by every process working on backups.
func (s *Service) lock() (*flock.Flock, error) {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return nil, err
	}
	fl := flock.New(filepath.Join(s.dir, lockFile))
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire backup lock: %w", err)
	}
	if !ok {
		return nil, ErrLocked
	}
	return fl, nil
}

func unlock(fl *flock.Flock) {
	if err := fl.Unlock(); err != nil {
		logger.Warn().Err(err).Msg("[Backup] Failed to release lock")
	}
}

type BackupOptions struct {
	// Output is the file to write. Empty picks a timestamped name in the
	// backup directory. A relative name without a directory is placed there too.
	Output   string
	Compress bool
}

// Backup writes a dump of every table.
func (s *Service) Backup(ctx context.Context, opts BackupOptions) (*Result, error) {
	fl, err := s.lock()
	if err != nil {
		return nil, err
	}
	defer unlock(fl)
	return s.backup(ctx, opts)
}

func (s *Service) outputPath(opts BackupOptions) string {
	if opts.Output == "" {
		return filepath.Join(s.dir, FileName(time.Now(), opts.Compress))
	}
	if filepath.Dir(opts.Output) == "." && !strings.HasPrefix(opts.Output, ".") {
		return filepath.Join(s.dir, opts.Output)
	}
	return opts.Output
}

func (s *Service) backup(ctx context.Context, opts BackupOptions) (*Result, error) {
	start := time.Now()
	path := s.outputPath(opts)
	compress := opts.Compress || strings.HasSuffix(path, ".gz")
	result := &Result{Path: path, Rows: map[string]int{}}

	order, err := models.InsertionOrder(s.db)
	if err != nil {
		return nil, err
	}

	dump := Dump{Version: FormatVersion, CreatedAt: start.UTC(), Driver: s.db.Dialector.Name()}
	for _, table := range order {
		if skipTables[table] {
			continue
		}
		rows, err := dumpTable(ctx, s.db, table)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			result.warn("skipped table %s: %v", table, err)
			continue
		}
		dump.Tables = append(dump.Tables, TableDump{Name: table, Rows: rows})
		result.Rows[table] = len(rows)
		logger.Debug().Str("table", table).Int("rows", len(rows)).Msg("[Backup] Dumped table")
	}

	if err := writeDump(path, compress, &dump); err != nil {
		return nil, err
	}
	result.Duration = time.Since(start)
	logger.Info().Str("path", path).Int("tables", len(dump.Tables)).Int("rows", result.TotalRows()).Msg("[Backup] Backup written")
	return result, nil
}

// dumpTable reads every row of table as raw driver values. JSON columns come
// back as bytes on most drivers and are stored as their text.
func dumpTable(ctx context.Context, db *gorm.DB, table string) ([]map[string]interface{}, error) {
	rows, err := db.WithContext(ctx).Table(table).Order("id ASC").Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	out := []map[string]interface{}{}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		ptrs := make([]interface{}, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func writeDump(path string, compress bool, dump *Dump) (err error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	// Write next to the target and rename so a failed run never leaves a
	// truncated file under a valid backup name.
	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create backup file: %w", err)
	}
	defer func() {
		if err != nil {
			file.Close()
			os.Remove(tmp)
		}
	}()

	buf := bufio.NewWriter(file)
	var w io.Writer = buf
	var gz *gzip.Writer
	if compress {
		gz = gzip.NewWriter(buf)
		w = gz
	}
	if err = json.NewEncoder(w).Encode(dump); err != nil {
		return fmt.Errorf("encode backup: %w", err)
	}
	if gz != nil {
		if err = gz.Close(); err != nil {
			return err
		}
	}
	if err = buf.Flush(); err != nil {
		return err
	}
	if err = file.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// ReadDump loads a dump, transparently decompressing gzip files.
func ReadDump(path string) (*Dump, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open backup: %w", err)
	}
	defer file.Close()

	br := bufio.NewReader(file)
	var r io.Reader = br
	if magic, err := br.Peek(2); err == nil && bytes.Equal(magic, []byte{0x1f, 0x8b}) {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("open gzip backup: %w", err)
		}
		defer gz.Close()
		r = gz
	}

	dec := json.NewDecoder(r)
	dec.UseNumber()
	var dump Dump
	if err := dec.Decode(&dump); err != nil {
		return nil, fmt.Errorf("corrupt backup %s: %w", filepath.Base(path), err)
	}
	if dump.Version != FormatVersion {
		return nil, fmt.Errorf("backup %s has format version %d, expected %d", filepath.Base(path), dump.Version, FormatVersion)
	}
	return &dump, nil
}

// Restore replaces the contents of every table with the dump at input.
func (s *Service) Restore(ctx context.Context, input string) (*Result, error) {
	fl, err := s.lock()
	if err != nil {
		return nil, err
	}
	defer unlock(fl)
	return s.restore(ctx, input)
}

func (s *Service) resolveInput(input string) string {
	if _, err := os.Stat(input); err == nil {
		return input
	}
	if candidate := filepath.Join(s.dir, input); fileExists(candidate) {
		return candidate
	}
	return input
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (s *Service) restore(ctx context.Context, input string) (*Result, error) {
	start := time.Now()
	path := s.resolveInput(input)
	dump, err := ReadDump(path)
	if err != nil {
		return nil, err
	}
	result := &Result{Path: path, Rows: map[string]int{}}

	schemas, err := modelSchemas(s.db)
	if err != nil {
		return nil, err
	}
	deleteOrder, err := models.DeletionOrder(s.db)
	if err != nil {
		return nil, err
	}
	insertOrder, err := models.InsertionOrder(s.db)
	if err != nil {
		return nil, err
	}

	byTable := make(map[string]TableDump, len(dump.Tables))
	for _, t := range dump.Tables {
		if _, known := schemas[t.Name]; !known {
			result.warn("backup table %s does not exist in the current schema, skipped", t.Name)
			continue
		}
		byTable[t.Name] = t
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, table := range deleteOrder {
			if skipTables[table] {
				continue
			}
			if err := tx.Exec("DELETE FROM " + tx.Statement.Quote(table)).Error; err != nil {
				return fmt.Errorf("clear %s: %w", table, err)
			}
		}

		for _, table := range insertOrder {
			td, ok := byTable[table]
			if !ok || len(td.Rows) == 0 {
				continue
			}
			columns, err := existingColumns(tx, table)
			if err != nil {
				return err
			}
			rows, err := prepareRows(td, schemas[table], columns, result)
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				continue
			}
			if err := tx.Table(table).CreateInBatches(rows, batchSize).Error; err != nil {
				return fmt.Errorf("restore %s: %w", table, err)
			}
			result.Rows[table] = len(rows)
			logger.Debug().Str("table", table).Int("rows", len(rows)).Msg("[Backup] Restored table")
		}

		if models.IsPostgres(tx) {
			for table := range result.Rows {
				if err := resetSequence(tx, table); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result.Duration = time.Since(start)
	logger.Info().Str("path", path).Int("rows", result.TotalRows()).Int("warnings", len(result.Warnings)).Msg("[Backup] Restore complete")
	return result, nil
}

func existingColumns(tx *gorm.DB, table string) (map[string]bool, error) {
	types, err := tx.Migrator().ColumnTypes(table)
	if err != nil {
		return nil, fmt.Errorf("inspect %s: %w", table, err)
	}
	out := make(map[string]bool, len(types))
	for _, ct := range types {
		out[ct.Name()] = true
	}
	return out, nil
}

// prepareRows drops columns the current schema no longer has and converts
// decoded JSON values to the column types.
func prepareRows(td TableDump, sch *schema.Schema, columns map[string]bool, result *Result) ([]map[string]interface{}, error) {
	dropped := map[string]bool{}
	rows := make([]map[string]interface{}, 0, len(td.Rows))
	for i, raw := range td.Rows {
		row := make(map[string]interface{}, len(raw))
		for col, v := range raw {
			if !columns[col] {
				dropped[col] = true
				continue
			}
			converted, err := convertValue(sch.LookUpField(col), v)
			if err != nil {
				return nil, fmt.Errorf("%s row %d column %s: %w", td.Name, i, col, err)
			}
			row[col] = converted
		}
		rows = append(rows, row)
	}
	if len(dropped) > 0 {
		names := make([]string, 0, len(dropped))
		for c := range dropped {
			names = append(names, c)
		}
		sort.Strings(names)
		result.warn("table %s: dropped columns missing from the current schema: %s", td.Name, strings.Join(names, ", "))
	}
	return rows, nil
}

var timeType = reflect.TypeOf(time.Time{})

// convertValue maps a decoded JSON value onto the Go kind of field. Columns
// without a model field are passed through as text.
func convertValue(field *schema.Field, v interface{}) (interface{}, error) {
	var kind reflect.Kind
	isTime := false
	if field != nil {
		kind = field.IndirectFieldType.Kind()
		isTime = field.IndirectFieldType == timeType
	}

	switch val := v.(type) {
	case nil:
		return nil, nil
	case json.Number:
		switch kind {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return val.Int64()
		case reflect.Float32, reflect.Float64:
			return val.Float64()
		case reflect.Bool:
			f, err := val.Float64()
			return f != 0, err
		default:
			return val.String(), nil
		}
	case string:
		if isTime {
			return time.Parse(time.RFC3339Nano, val)
		}
		return val, nil
	case map[string]interface{}, []interface{}:
		b, err := json.Marshal(val)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	default:
		return val, nil
	}
}

func resetSequence(tx *gorm.DB, table string) error {
	quoted := tx.Statement.Quote(table)
	sql := fmt.Sprintf(
		"SELECT setval(pg_get_serial_sequence('%s', 'id'), COALESCE(MAX(id), 1), MAX(id) IS NOT NULL) FROM %s",
		table, quoted)
	if err := tx.Exec(sql).Error; err != nil {
		return fmt.Errorf("reset sequence of %s: %w", table, err)
	}
	return nil
}

var (
	schemaOnce  sync.Once
	schemaByTbl map[string]*schema.Schema
	schemaErr   error
)

func modelSchemas(db *gorm.DB) (map[string]*schema.Schema, error) {
	schemaOnce.Do(func() {
		cache := &sync.Map{}
		schemaByTbl = map[string]*schema.Schema{}
		for _, m := range models.All() {
			s, err := schema.Parse(m, cache, db.NamingStrategy)
			if err != nil {
				schemaErr = fmt.Errorf("parse %T: %w", m, err)
				return
			}
			schemaByTbl[s.Table] = s
		}
	})
	return schemaByTbl, schemaErr
}

// FileInfo describes one backup file.
type FileInfo struct {
	Name       string    `json:"name"`
	Path       string    `json:"path"`
	Size       int64     `json:"size"`
	CreatedAt  time.Time `json:"created_at"`
	Compressed bool      `json:"compressed"`
}

// List returns the backups in the directory, newest first. The creation time
// is taken from the file name.
func (s *Service) List() ([]FileInfo, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []FileInfo{}, nil
		}
		return nil, err
	}
	files := []FileInfo{}
	for _, e := range entries {
		info, ok := parseFileName(e.Name())
		if !ok || e.IsDir() {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		info.Path = filepath.Join(s.dir, e.Name())
		info.Size = fi.Size()
		files = append(files, info)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].CreatedAt.After(files[j].CreatedAt) })
	return files, nil
}

func parseFileName(name string) (FileInfo, bool) {
	if !strings.HasPrefix(name, filePrefix) {
		return FileInfo{}, false
	}
	stamp := strings.TrimPrefix(name, filePrefix)
	compressed := strings.HasSuffix(stamp, ".json.gz")
	switch {
	case compressed:
		stamp = strings.TrimSuffix(stamp, ".json.gz")
	case strings.HasSuffix(stamp, ".json"):
		stamp = strings.TrimSuffix(stamp, ".json")
	default:
		return FileInfo{}, false
	}
	t, err := time.ParseInLocation(timeLayout, stamp, time.Local)
	if err != nil {
		return FileInfo{}, false
	}
	return FileInfo{Name: name, CreatedAt: t, Compressed: compressed}, true
}

// Prune deletes all but the newest keep backups and returns the removed names.
func (s *Service) Prune(keep int) ([]string, error) {
	if keep <= 0 {
		return nil, nil
	}
	files, err := s.List()
	if err != nil {
		return nil, err
	}
	var removed []string
	for _, f := range files[min(keep, len(files)):] {
		if err := os.Remove(f.Path); err != nil {
			logger.Warn().Err(err).Str("path", f.Path).Msg("[Backup] Failed to prune backup")
			continue
		}
		removed = append(removed, f.Name)
	}
	if len(removed) > 0 {
		logger.Info().Int("removed", len(removed)).Int("keep", keep).Msg("[Backup] Pruned old backups")
	}
	return removed, nil
}
