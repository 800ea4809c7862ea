package taskstore

import (
	"encoding/json"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// appSettingRow is the generic key-value table config/settings.go builds
// typed getters on top of, grounded on internal/storage/models.go's
// AppSetting and internal/storage/db_test.go's SetString/GetString API.
type appSettingRow struct {
	Key   string `gorm:"primaryKey"`
	Value string
}

func (appSettingRow) TableName() string { return "app_settings" }

// SetString upserts a single key-value setting.
func (s *Store) SetString(key, value string) error {
	return s.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&appSettingRow{Key: key, Value: value}).Error
}

// GetString returns the value for key, or "" if unset.
func (s *Store) GetString(key string) (string, error) {
	var row appSettingRow
	err := s.DB.Where("key = ?", key).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return row.Value, nil
}

// SetStringList stores a string slice as a JSON-encoded value.
func (s *Store) SetStringList(key string, values []string) error {
	data, err := json.Marshal(values)
	if err != nil {
		return err
	}
	return s.SetString(key, string(data))
}

// GetStringList reads back a value stored by SetStringList.
func (s *Store) GetStringList(key string) ([]string, error) {
	raw, err := s.GetString(key)
	if err != nil || raw == "" {
		return nil, err
	}
	var values []string
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil, err
	}
	return values, nil
}
