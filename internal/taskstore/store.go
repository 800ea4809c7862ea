package taskstore

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

var (
	// ErrDuplicateID is returned by Insert when task_id already exists (I1).
	ErrDuplicateID = errors.New("taskstore: duplicate task id")
	// ErrQuota is returned by Insert when uid has exceeded its task quota.
	ErrQuota = errors.New("taskstore: uid task quota exceeded")
	// ErrNotFound is returned by operations addressing a missing row.
	ErrNotFound = errors.New("taskstore: task not found")
)

// Store is the durable task table, grounded on internal/storage/db_test.go's
// expected Storage{DB *gorm.DB} API and internal/storage/models.go's
// DownloadTask shape, rebuilt over the request_task row defined in this
// package rather than the teacher's badger-backed internal/storage/db.go
// (dead code, absent from go.mod).
type Store struct {
	DB *gorm.DB

	// UIDQuota caps the number of non-terminal rows a single uid may hold
	// open at once; zero means unlimited.
	UIDQuota int
}

// New opens (or migrates) a task store on an already-configured *gorm.DB.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&requestTaskRow{}, &appSettingRow{}, &dailyStatRow{}); err != nil {
		return nil, fmt.Errorf("taskstore: automigrate: %w", err)
	}
	return &Store{DB: db}, nil
}

// Insert atomically creates a row, rejecting id collisions (I1) and quota
// overruns.
func (s *Store) Insert(t Task) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&requestTaskRow{}).Where("task_id = ?", t.TaskID).Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return ErrDuplicateID
		}

		if s.UIDQuota > 0 {
			var openCount int64
			if err := tx.Model(&requestTaskRow{}).
				Where("uid = ? AND state NOT IN ?", t.UID, []int{int(Completed), int(Failed), int(Removed)}).
				Count(&openCount).Error; err != nil {
				return err
			}
			if int(openCount) >= s.UIDQuota {
				return ErrQuota
			}
		}

		if t.CTime == 0 {
			t.CTime = nowUnix()
		}
		t.MTime = t.CTime

		row, err := rowFromTask(t)
		if err != nil {
			return err
		}
		return tx.Create(&row).Error
	})
}

// Get reads the full row for task_id.
func (s *Store) Get(taskID uint32) (Task, error) {
	var row requestTaskRow
	if err := s.DB.Where("task_id = ?", taskID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Task{}, ErrNotFound
		}
		return Task{}, err
	}
	return taskFromRow(row)
}

// UpdateState applies a single-row state/reason transition, conditional on
// the row existing.
func (s *Store) UpdateState(taskID uint32, state State, reason Reason) error {
	res := s.DB.Model(&requestTaskRow{}).Where("task_id = ?", taskID).
		Updates(map[string]any{"state": int(state), "reason": string(reason), "m_time": nowUnix()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateProgress writes processed bytes and the current file index.
func (s *Store) UpdateProgress(taskID uint32, progress Progress) error {
	data, err := marshalProgress(progress)
	if err != nil {
		return err
	}
	res := s.DB.Model(&requestTaskRow{}).Where("task_id = ?", taskID).
		Updates(map[string]any{"progress_json": data, "m_time": nowUnix()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateTime accumulates execution time onto the task's running total.
func (s *Store) UpdateTime(taskID uint32, taskTimeSec int64) error {
	res := s.DB.Model(&requestTaskRow{}).Where("task_id = ?", taskID).
		Update("task_time_sec", gorm.Expr("task_time_sec + ?", taskTimeSec))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteByUID removes (soft-deletes) all rows owned by uid.
func (s *Store) DeleteByUID(uid uint64) error {
	return s.DB.Where("uid = ?", uid).Delete(&requestTaskRow{}).Error
}

// Delete removes (soft-deletes) a single row.
func (s *Store) Delete(taskID uint32) error {
	res := s.DB.Where("task_id = ?", taskID).Delete(&requestTaskRow{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// QueryActiveUIDs returns the set of uids with at least one non-terminal
// row.
func (s *Store) QueryActiveUIDs() ([]uint64, error) {
	var uids []uint64
	err := s.DB.Model(&requestTaskRow{}).
		Where("state NOT IN ?", []int{int(Completed), int(Failed), int(Removed)}).
		Distinct().Pluck("uid", &uids).Error
	return uids, err
}

// QueryTasksForUID returns uid's rows ordered by (mode asc, priority asc).
func (s *Store) QueryTasksForUID(uid uint64) ([]Task, error) {
	var rows []requestTaskRow
	if err := s.DB.Where("uid = ?", uid).Order("mode asc, priority asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	return tasksFromRows(rows)
}

// QueryByStates returns every row whose state is one of states, used by the
// QoS ranker to load its candidate set (§4.5 step 1).
func (s *Store) QueryByStates(states ...State) ([]Task, error) {
	ints := make([]int, len(states))
	for i, st := range states {
		ints[i] = int(st)
	}
	var rows []requestTaskRow
	if err := s.DB.Where("state IN ?", ints).Find(&rows).Error; err != nil {
		return nil, err
	}
	return tasksFromRows(rows)
}

func tasksFromRows(rows []requestTaskRow) ([]Task, error) {
	out := make([]Task, 0, len(rows))
	for _, r := range rows {
		t, err := taskFromRow(r)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func marshalProgress(p Progress) (string, error) {
	row, err := rowFromTask(Task{Progress: p})
	if err != nil {
		return "", err
	}
	return row.ProgressJSON, nil
}
