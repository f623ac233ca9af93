package dataset

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/pivolan/textile_dashboard/domain/models"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var tableIdent = regexp.MustCompile(`^[a-z0-9_]+$`)

// SQLSource reads a dataset from the database table of the same name.
type SQLSource struct {
	db *gorm.DB
}

func NewSQLSource(db *gorm.DB) *SQLSource {
	return &SQLSource{db: db}
}

// OpenSQLSource connects over the mysql protocol (MySQL or ClickHouse).
func OpenSQLSource(dsn string) (*SQLSource, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("cannot connect to database: %w", err)
	}
	return NewSQLSource(db), nil
}

func (s *SQLSource) Name() string { return "sql" }

func (s *SQLSource) Load(ctx context.Context, name string) (*models.Table, error) {
	if !tableIdent.MatchString(name) {
		return nil, fmt.Errorf("table %q: %w", name, models.ErrNotFound)
	}
	db := s.db.WithContext(ctx)
	if !db.Migrator().HasTable(name) {
		return nil, fmt.Errorf("table %q: %w", name, models.ErrNotFound)
	}

	rows, err := db.Table(name).Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	headers := UniqueColumns(columns)

	var records [][]string
	for rows.Next() {
		values := make([]interface{}, len(columns))
		ptrs := make([]interface{}, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		rec := make([]string, len(columns))
		for i, v := range values {
			rec[i] = sqlText(v)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	kinds := inferKinds(headers, records)
	table := &models.Table{Name: name, Columns: headers, Rows: make([]models.Row, 0, len(records))}
	for _, rec := range records {
		row := make(models.Row, len(headers))
		for i, h := range headers {
			row[h] = convertCell(rec[i], kinds[i])
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

// sqlText renders a scanned driver value the way it would appear in a CSV export.
func sqlText(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(x)
	case time.Time:
		return x.Format("2006-01-02 15:04:05")
	default:
		return fmt.Sprintf("%v", x)
	}
}
