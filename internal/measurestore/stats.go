package measurestore

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
)

// TableStatsRow holds size and row count information for one table.
type TableStatsRow struct {
	Name     string  `json:"name"`
	RowCount int64   `json:"row_count"`
	SizeMB   float64 `json:"size_mb"`
}

// DatabaseStats summarises on-disk usage for the whole store.
type DatabaseStats struct {
	TotalSizeMB float64         `json:"total_size_mb"`
	Tables      []TableStatsRow `json:"tables"`
}

// TableStats returns size and row count information for every table in the
// store, largest first.
func (db *DB) TableStats() (*DatabaseStats, error) {
	var totalPages, pageSize int64
	if err := db.QueryRow("SELECT page_count, page_size FROM pragma_page_count(), pragma_page_size()").
		Scan(&totalPages, &pageSize); err != nil {
		return nil, fmt.Errorf("page count/size: %w", err)
	}
	totalSizeMB := float64(totalPages*pageSize) / (1024 * 1024)

	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		names = append(names, name)
	}

	var tables []TableStatsRow
	for _, name := range names {
		var rowCount int64
		if err := db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %q", name)).Scan(&rowCount); err != nil {
			rowCount = 0
		}

		var sizeMB float64
		_ = db.QueryRow(`SELECT COALESCE(SUM(pgsize), 0) / 1048576.0 FROM dbstat WHERE name = ?`, name).Scan(&sizeMB)

		tables = append(tables, TableStatsRow{Name: name, RowCount: rowCount, SizeMB: sizeMB})
	}

	sort.Slice(tables, func(i, j int) bool { return tables[i].SizeMB > tables[j].SizeMB })

	return &DatabaseStats{TotalSizeMB: totalSizeMB, Tables: tables}, nil
}

func writeJSONStats(w http.ResponseWriter, stats *DatabaseStats) {
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		http.Error(w, fmt.Sprintf("failed to encode stats: %v", err), http.StatusInternalServerError)
	}
}
