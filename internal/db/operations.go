package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

type scanner interface {
	Scan(dest ...interface{}) error
}

type PrinterStore struct {
	db *sql.DB
}

func NewPrinterStore(database *sql.DB) *PrinterStore {
	return &PrinterStore{db: database}
}

func scanPrinter(row scanner) (*Printer, error) {
	p := &Printer{}
	var lastSeen sql.NullTime
	err := row.Scan(
		&p.ID, &p.MACAddress, &p.UID, &p.Name, &p.IsActive,
		&lastSeen, &p.LastStatusJSON, &p.LastError, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if lastSeen.Valid {
		p.LastSeenAt = &lastSeen.Time
	}
	return p, nil
}

func (s *PrinterStore) Create(ctx context.Context, p *Printer) error {
	result, err := s.db.ExecContext(ctx, InsertPrinter,
		p.MACAddress, p.UID, p.Name, p.LastSeenAt, p.LastStatusJSON)
	if err != nil {
		return fmt.Errorf("failed to create printer: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get printer id: %w", err)
	}
	p.ID = id
	p.IsActive = true
	return nil
}

func (s *PrinterStore) GetByID(ctx context.Context, id int64) (*Printer, error) {
	p, err := scanPrinter(s.db.QueryRowContext(ctx, GetPrinterByID, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("failed to get printer: %w", err)
	}
	return p, nil
}

func (s *PrinterStore) GetByMAC(ctx context.Context, mac string) (*Printer, error) {
	p, err := scanPrinter(s.db.QueryRowContext(ctx, GetPrinterByMAC, mac))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("failed to get printer by mac: %w", err)
	}
	return p, nil
}

func (s *PrinterStore) List(ctx context.Context) ([]*Printer, error) {
	rows, err := s.db.QueryContext(ctx, ListPrinters)
	if err != nil {
		return nil, fmt.Errorf("failed to list printers: %w", err)
	}
	defer rows.Close()

	var printers []*Printer
	for rows.Next() {
		p, err := scanPrinter(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan printer: %w", err)
		}
		printers = append(printers, p)
	}
	return printers, rows.Err()
}

// Touch records a protocol contact: refresh last_seen_at, absorb any
// non-empty name/uid/status the device sent, and clear last_error.
func (s *PrinterStore) Touch(ctx context.Context, id int64, uid, name, statusJSON string, seenAt time.Time) error {
	_, err := s.db.ExecContext(ctx, TouchPrinter, uid, name, seenAt, statusJSON, statusJSON, id)
	if err != nil {
		return fmt.Errorf("failed to touch printer: %w", err)
	}
	return nil
}

func (s *PrinterStore) Rename(ctx context.Context, id int64, name string) error {
	_, err := s.db.ExecContext(ctx, UpdatePrinterName, name, id)
	if err != nil {
		return fmt.Errorf("failed to rename printer: %w", err)
	}
	return nil
}

func (s *PrinterStore) SetActive(ctx context.Context, id int64, active bool) error {
	_, err := s.db.ExecContext(ctx, UpdatePrinterActive, active, id)
	if err != nil {
		return fmt.Errorf("failed to update printer active flag: %w", err)
	}
	return nil
}

func (s *PrinterStore) MostRecentlySeenActive(ctx context.Context) (*Printer, error) {
	p, err := scanPrinter(s.db.QueryRowContext(ctx, MostRecentlySeenActivePrinter))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("failed to get most recently seen printer: %w", err)
	}
	return p, nil
}

type JobStore struct {
	db *sql.DB
}

func NewJobStore(database *sql.DB) *JobStore {
	return &JobStore{db: database}
}

func scanJob(row scanner) (*PrintJob, error) {
	j := &PrintJob{}
	var deliveredAt, completedAt sql.NullTime
	err := row.Scan(
		&j.ID, &j.PrinterID, &j.OrderID, &j.OrderNumber, &j.CopyType, &j.Source,
		&j.Status, &j.JobToken, &j.RequestedMime, &j.PayloadCache,
		&j.FailureCode, &j.FailureMessage, &j.RequestedAt, &deliveredAt, &completedAt)
	if err != nil {
		return nil, err
	}
	if deliveredAt.Valid {
		j.DeliveredAt = &deliveredAt.Time
	}
	if completedAt.Valid {
		j.CompletedAt = &completedAt.Time
	}
	return j, nil
}

func (s *JobStore) Create(ctx context.Context, j *PrintJob) error {
	var cache interface{}
	if len(j.PayloadCache) > 0 {
		cache = j.PayloadCache
	}
	result, err := s.db.ExecContext(ctx, InsertJob,
		j.PrinterID, j.OrderID, j.OrderNumber, j.CopyType, j.Source,
		j.JobToken, j.RequestedMime, cache, j.RequestedAt)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get job id: %w", err)
	}
	j.ID = id
	j.Status = "QUEUED"
	return nil
}

func (s *JobStore) GetByID(ctx context.Context, id int64) (*PrintJob, error) {
	j, err := scanJob(s.db.QueryRowContext(ctx, GetJobByID, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return j, nil
}

func (s *JobStore) GetByToken(ctx context.Context, token string) (*PrintJob, error) {
	j, err := scanJob(s.db.QueryRowContext(ctx, GetJobByToken, token))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("failed to get job by token: %w", err)
	}
	return j, nil
}

func (s *JobStore) FindDedup(ctx context.Context, orderID int64, copyType string) (*PrintJob, error) {
	j, err := scanJob(s.db.QueryRowContext(ctx, FindDedupJob, orderID, copyType))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("failed to find dedup job: %w", err)
	}
	return j, nil
}

// NextForPrinter returns the job a polling printer should work on next:
// the oldest QUEUED job, else the oldest DELIVERED job that never got an
// acknowledgment (the retry path). nil means nothing to print.
func (s *JobStore) NextForPrinter(ctx context.Context, printerID int64) (*PrintJob, error) {
	j, err := scanJob(s.db.QueryRowContext(ctx, NextQueuedJobForPrinter, printerID))
	if err == nil {
		return j, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to get next queued job: %w", err)
	}

	j, err = scanJob(s.db.QueryRowContext(ctx, NextDeliveredJobForPrinter, printerID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get next delivered job: %w", err)
	}
	return j, nil
}

// OldestOpenForPrinter is the fallback resolution for firmware that fetches
// or acknowledges without sending the job token.
func (s *JobStore) OldestOpenForPrinter(ctx context.Context, printerID int64) (*PrintJob, error) {
	j, err := scanJob(s.db.QueryRowContext(ctx, OldestOpenJobForPrinter, printerID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("failed to get oldest open job: %w", err)
	}
	return j, nil
}

// MarkDelivered performs the atomic QUEUED -> DELIVERED claim, persisting the
// rendered payload in the same statement. Returns false when the job was
// already claimed by a concurrent fetch.
func (s *JobStore) MarkDelivered(ctx context.Context, id int64, payload []byte, at time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx, MarkJobDelivered, at, payload, id)
	if err != nil {
		return false, fmt.Errorf("failed to mark job delivered: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return affected > 0, nil
}

func (s *JobStore) MarkCompleted(ctx context.Context, id int64, at time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx, MarkJobCompleted, at, id)
	if err != nil {
		return false, fmt.Errorf("failed to mark job completed: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return affected > 0, nil
}

func (s *JobStore) MarkFailed(ctx context.Context, id int64, code, message string, at time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx, MarkJobFailed, at, code, message, id)
	if err != nil {
		return false, fmt.Errorf("failed to mark job failed: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return affected > 0, nil
}

// MarkFailedWithPrinterError fails the job and mirrors the device-reported
// error onto the owning printer in one transaction, so the registry and the
// job never disagree about what happened.
func (s *JobStore) MarkFailedWithPrinterError(ctx context.Context, jobID, printerID int64, code, message string, at time.Time) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, MarkJobFailed, at, code, message, jobID)
	if err != nil {
		return false, fmt.Errorf("failed to mark job failed: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}

	lastError := code
	if message != "" {
		lastError = code + ": " + message
	}
	if _, err := tx.ExecContext(ctx, SetPrinterLastError, lastError, printerID); err != nil {
		return false, fmt.Errorf("failed to set printer last error: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return affected > 0, nil
}

func (s *JobStore) List(ctx context.Context, filter JobFilter) ([]*PrintJob, error) {
	var conditions []string
	var args []interface{}

	if filter.PrinterID > 0 {
		conditions = append(conditions, "printer_id = ?")
		args = append(args, filter.PrinterID)
	}
	if filter.OrderID > 0 {
		conditions = append(conditions, "order_id = ?")
		args = append(args, filter.OrderID)
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, filter.Status)
	}

	query := "SELECT " + jobColumns + " FROM print_jobs"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY requested_at DESC, id DESC"

	limit := 100
	if filter.Limit > 0 {
		limit = filter.Limit
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*PrintJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

type OrderStore struct {
	db *sql.DB
}

func NewOrderStore(database *sql.DB) *OrderStore {
	return &OrderStore{db: database}
}

func (s *OrderStore) Create(ctx context.Context, o *Order) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, InsertOrder,
		o.Number, o.CustomerName, o.CustomerPhone, o.PickupAt,
		o.Notes, o.SubtotalText, o.TaxText, o.TotalText)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}
	orderID, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get order id: %w", err)
	}
	o.ID = orderID

	for i := range o.Lines {
		line := &o.Lines[i]
		line.OrderID = orderID
		line.Position = i
		lineResult, err := tx.ExecContext(ctx, InsertOrderLine,
			orderID, i, line.Qty, line.Name, line.KitchenName)
		if err != nil {
			return fmt.Errorf("failed to create order line: %w", err)
		}
		lineID, err := lineResult.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get order line id: %w", err)
		}
		line.ID = lineID

		for k := range line.Selections {
			sel := &line.Selections[k]
			sel.LineID = lineID
			sel.Position = k
			selResult, err := tx.ExecContext(ctx, InsertLineSelection,
				lineID, k, sel.Text, sel.KitchenText, sel.IndentLevel)
			if err != nil {
				return fmt.Errorf("failed to create line selection: %w", err)
			}
			selID, err := selResult.LastInsertId()
			if err != nil {
				return fmt.Errorf("failed to get selection id: %w", err)
			}
			sel.ID = selID
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *OrderStore) scanOrder(ctx context.Context, row scanner) (*Order, error) {
	o := &Order{}
	var pickupAt sql.NullTime
	err := row.Scan(
		&o.ID, &o.Number, &o.CustomerName, &o.CustomerPhone, &pickupAt,
		&o.Notes, &o.SubtotalText, &o.TaxText, &o.TotalText, &o.CreatedAt)
	if err != nil {
		return nil, err
	}
	if pickupAt.Valid {
		o.PickupAt = &pickupAt.Time
	}

	if err := s.loadLines(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *OrderStore) loadLines(ctx context.Context, o *Order) error {
	rows, err := s.db.QueryContext(ctx, GetOrderLines, o.ID)
	if err != nil {
		return fmt.Errorf("failed to get order lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var line OrderLine
		if err := rows.Scan(&line.ID, &line.OrderID, &line.Position, &line.Qty, &line.Name, &line.KitchenName); err != nil {
			return fmt.Errorf("failed to scan order line: %w", err)
		}
		o.Lines = append(o.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for i := range o.Lines {
		selRows, err := s.db.QueryContext(ctx, GetLineSelections, o.Lines[i].ID)
		if err != nil {
			return fmt.Errorf("failed to get line selections: %w", err)
		}
		for selRows.Next() {
			var sel LineSelection
			if err := selRows.Scan(&sel.ID, &sel.LineID, &sel.Position, &sel.Text, &sel.KitchenText, &sel.IndentLevel); err != nil {
				selRows.Close()
				return fmt.Errorf("failed to scan line selection: %w", err)
			}
			o.Lines[i].Selections = append(o.Lines[i].Selections, sel)
		}
		if err := selRows.Err(); err != nil {
			selRows.Close()
			return err
		}
		selRows.Close()
	}
	return nil
}

func (s *OrderStore) GetByID(ctx context.Context, id int64) (*Order, error) {
	o, err := s.scanOrder(ctx, s.db.QueryRowContext(ctx, GetOrderByID, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return o, nil
}

func (s *OrderStore) GetByNumber(ctx context.Context, number string) (*Order, error) {
	o, err := s.scanOrder(ctx, s.db.QueryRowContext(ctx, GetOrderByNumber, number))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("failed to get order by number: %w", err)
	}
	return o, nil
}

type SettingStore struct {
	db *sql.DB
}

func NewSettingStore(database *sql.DB) *SettingStore {
	return &SettingStore{db: database}
}

func (s *SettingStore) Get(ctx context.Context, key string) (*Setting, error) {
	setting := &Setting{Key: key}
	err := s.db.QueryRowContext(ctx, GetSetting, key).Scan(&setting.Value, &setting.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("failed to get setting: %w", err)
	}
	return setting, nil
}

func (s *SettingStore) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, SetSetting, key, value, value)
	if err != nil {
		return fmt.Errorf("failed to set setting: %w", err)
	}
	return nil
}

func (s *SettingStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, DeleteSetting, key)
	if err != nil {
		return fmt.Errorf("failed to delete setting: %w", err)
	}
	return nil
}
