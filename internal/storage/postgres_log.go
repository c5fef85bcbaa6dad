package storage

import (
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/lib/pq"

	"github.com/example/van-notify/internal/models"
)

// PostgresLog stores each recipient's log as a single JSON document row,
// matching the read-full/write-full discipline of the Log contract.
type PostgresLog struct {
	db *sql.DB
}

func NewPostgresLog(dsn string) (*PostgresLog, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	// quick ping
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresLog{db: db}, nil
}

func (p *PostgresLog) ReadLog(recipientID string) ([]models.Notification, error) {
	var raw []byte
	err := p.db.QueryRow(`SELECT entries FROM notification_logs WHERE recipient_id=$1`, recipientID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var entries []models.Notification
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (p *PostgresLog) WriteLog(recipientID string, entries []models.Notification) error {
	raw, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	_, err = p.db.Exec(`INSERT INTO notification_logs(recipient_id, entries, updated_at) VALUES($1,$2,$3)
		ON CONFLICT (recipient_id) DO UPDATE SET entries=$2, updated_at=$3`,
		recipientID, raw, time.Now())
	return err
}

func (p *PostgresLog) Watermark(recipientID string) (time.Time, error) {
	var t time.Time
	err := p.db.QueryRow(`SELECT last_seen FROM notification_watermarks WHERE recipient_id=$1`, recipientID).Scan(&t)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	return t, err
}

func (p *PostgresLog) SetWatermark(recipientID string, t time.Time) error {
	_, err := p.db.Exec(`INSERT INTO notification_watermarks(recipient_id, last_seen) VALUES($1,$2)
		ON CONFLICT (recipient_id) DO UPDATE SET last_seen=$2`, recipientID, t)
	return err
}

func (p *PostgresLog) AlertsEnabled() (bool, error) {
	var v string
	err := p.db.QueryRow(`SELECT value FROM engine_settings WHERE key='alerts_enabled'`).Scan(&v)
	if err == sql.ErrNoRows {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return v == "true", nil
}

func (p *PostgresLog) SetAlertsEnabled(enabled bool) error {
	v := "false"
	if enabled {
		v = "true"
	}
	_, err := p.db.Exec(`INSERT INTO engine_settings(key, value) VALUES('alerts_enabled',$1)
		ON CONFLICT (key) DO UPDATE SET value=$1`, v)
	return err
}
