package taskstore

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// requestTaskRow is the GORM-mapped row for the persisted "request_task"
// table (§6 Persisted state layout), grounded on the teacher's
// internal/storage/models.go DownloadTask shape and TableName() convention.
type requestTaskRow struct {
	TaskID uint32 `gorm:"primaryKey"`
	UID    uint64 `gorm:"index"`

	Action             string `gorm:"index"`
	Mode               int
	URL                string
	Method             string
	HeadersJSON        string
	Cookies            string
	SavePath           string
	Version            string
	RetryAllowed       bool
	RedirectAllowed    bool
	NetworkRequirement string
	MeteredAllowed     bool
	RoamingAllowed     bool
	Priority           int
	BeginByte          int64
	EndByte            int64
	PreciseSize        bool
	GaugeVisible       bool
	MinSpeedBPS        int64
	MinSpeedDurSec     int64
	Bundle             string
	BundleType         int
	CertPathsJSON      string
	PinnedPubKeysJSON  string

	State        int `gorm:"index"`
	Reason       string
	Tries        int
	ProgressJSON string

	CTime         int64
	MTime         int64
	LastStartTime int64
	TaskTimeSec   int64
	QueueOrder    int

	DeletedAt gorm.DeletedAt `gorm:"index"`
}

func (requestTaskRow) TableName() string { return "request_task" }

func rowFromTask(t Task) (requestTaskRow, error) {
	headers, err := json.Marshal(t.Headers)
	if err != nil {
		return requestTaskRow{}, err
	}
	certs, err := json.Marshal(t.CertPaths)
	if err != nil {
		return requestTaskRow{}, err
	}
	keys, err := json.Marshal(t.PinnedPubKeys)
	if err != nil {
		return requestTaskRow{}, err
	}
	progress, err := json.Marshal(t.Progress)
	if err != nil {
		return requestTaskRow{}, err
	}
	return requestTaskRow{
		TaskID:             t.TaskID,
		UID:                t.UID,
		Action:             string(t.Action),
		Mode:               int(t.Mode),
		URL:                t.URL,
		Method:             t.Method,
		HeadersJSON:        string(headers),
		Cookies:            t.Cookies,
		SavePath:           t.SavePath,
		Version:            t.Version,
		RetryAllowed:       t.RetryAllowed,
		RedirectAllowed:    t.RedirectAllowed,
		NetworkRequirement: string(t.NetworkRequirement),
		MeteredAllowed:     t.MeteredAllowed,
		RoamingAllowed:     t.RoamingAllowed,
		Priority:           t.Priority,
		BeginByte:          t.BeginByte,
		EndByte:            t.EndByte,
		PreciseSize:        t.PreciseSize,
		GaugeVisible:       t.GaugeVisible,
		MinSpeedBPS:        t.MinSpeed.BytesPerSec,
		MinSpeedDurSec:     t.MinSpeed.DurationSec,
		Bundle:             t.Bundle,
		BundleType:         t.BundleType,
		CertPathsJSON:      string(certs),
		PinnedPubKeysJSON:  string(keys),
		State:              int(t.State),
		Reason:             string(t.Reason),
		Tries:              t.Tries,
		ProgressJSON:       string(progress),
		CTime:              t.CTime,
		MTime:              t.MTime,
		LastStartTime:      t.LastStartTime,
		TaskTimeSec:        t.TaskTimeSec,
		QueueOrder:         t.QueueOrder,
	}, nil
}

func taskFromRow(r requestTaskRow) (Task, error) {
	var headers map[string]string
	if r.HeadersJSON != "" {
		if err := json.Unmarshal([]byte(r.HeadersJSON), &headers); err != nil {
			return Task{}, err
		}
	}
	var certs []string
	if r.CertPathsJSON != "" {
		if err := json.Unmarshal([]byte(r.CertPathsJSON), &certs); err != nil {
			return Task{}, err
		}
	}
	var keys []string
	if r.PinnedPubKeysJSON != "" {
		if err := json.Unmarshal([]byte(r.PinnedPubKeysJSON), &keys); err != nil {
			return Task{}, err
		}
	}
	var progress Progress
	if r.ProgressJSON != "" {
		if err := json.Unmarshal([]byte(r.ProgressJSON), &progress); err != nil {
			return Task{}, err
		}
	}
	return Task{
		TaskID:             r.TaskID,
		UID:                r.UID,
		Action:             Action(r.Action),
		Mode:               Mode(r.Mode),
		URL:                r.URL,
		Method:             r.Method,
		Headers:            headers,
		Cookies:            r.Cookies,
		SavePath:           r.SavePath,
		Version:            r.Version,
		RetryAllowed:       r.RetryAllowed,
		RedirectAllowed:    r.RedirectAllowed,
		NetworkRequirement: NetworkRequirement(r.NetworkRequirement),
		MeteredAllowed:     r.MeteredAllowed,
		RoamingAllowed:     r.RoamingAllowed,
		Priority:           r.Priority,
		BeginByte:          r.BeginByte,
		EndByte:            r.EndByte,
		PreciseSize:        r.PreciseSize,
		GaugeVisible:       r.GaugeVisible,
		MinSpeed:           MinSpeed{BytesPerSec: r.MinSpeedBPS, DurationSec: r.MinSpeedDurSec},
		Bundle:             r.Bundle,
		BundleType:         r.BundleType,
		CertPaths:          certs,
		PinnedPubKeys:      keys,
		State:              State(r.State),
		Reason:             Reason(r.Reason),
		Tries:              r.Tries,
		Progress:           progress,
		CTime:              r.CTime,
		MTime:              r.MTime,
		LastStartTime:      r.LastStartTime,
		TaskTimeSec:        r.TaskTimeSec,
		QueueOrder:         r.QueueOrder,
	}, nil
}

func nowUnix() int64 { return time.Now().Unix() }
