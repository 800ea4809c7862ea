package taskstore

import "gorm.io/gorm/clause"

// dailyStatRow tracks daily byte/file counters, grounded on
// internal/storage/models.go's DailyStat.
type dailyStatRow struct {
	Date  string `gorm:"primaryKey"`
	Bytes int64  `gorm:"default:0"`
	Files int64  `gorm:"default:0"`
}

func (dailyStatRow) TableName() string { return "daily_stats" }

// DailyStat is the exported read shape for GetDailyHistory.
type DailyStat struct {
	Date  string
	Bytes int64
	Files int64
}

// IncrementDailyBytes upserts today's byte counter via SQL-level add.
func (s *Store) IncrementDailyBytes(date string, bytes int64) error {
	return s.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "date"}},
		DoUpdates: clause.Assignments(map[string]any{"bytes": clause.Expr{SQL: "bytes + ?", Vars: []any{bytes}}}),
	}).Create(&dailyStatRow{Date: date, Bytes: bytes}).Error
}

// IncrementDailyFiles upserts today's completed-file counter.
func (s *Store) IncrementDailyFiles(date string) error {
	return s.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "date"}},
		DoUpdates: clause.Assignments(map[string]any{"files": clause.Expr{SQL: "files + 1", Vars: nil}}),
	}).Create(&dailyStatRow{Date: date, Files: 1}).Error
}

// GetTotalLifetime sums Bytes across every tracked day.
func (s *Store) GetTotalLifetime() (int64, error) {
	var total int64
	err := s.DB.Model(&dailyStatRow{}).Select("COALESCE(SUM(bytes), 0)").Row().Scan(&total)
	return total, err
}

// GetTotalFiles sums Files across every tracked day.
func (s *Store) GetTotalFiles() (int64, error) {
	var total int64
	err := s.DB.Model(&dailyStatRow{}).Select("COALESCE(SUM(files), 0)").Row().Scan(&total)
	return total, err
}

// GetDailyHistory returns the most recent `days` daily stat rows, newest
// first.
func (s *Store) GetDailyHistory(days int) ([]DailyStat, error) {
	var rows []dailyStatRow
	if err := s.DB.Order("date desc").Limit(days).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]DailyStat, len(rows))
	for i, r := range rows {
		out[i] = DailyStat{Date: r.Date, Bytes: r.Bytes, Files: r.Files}
	}
	return out, nil
}
