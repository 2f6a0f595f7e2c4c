package db

const printerColumns = `id, mac_address, uid, name, is_active, last_seen_at, last_status_json, last_error, created_at, updated_at`

const (
	InsertPrinter = `
		INSERT INTO printers (mac_address, uid, name, is_active, last_seen_at, last_status_json)
		VALUES (?, ?, ?, 1, ?, ?)
	`

	GetPrinterByID = `
		SELECT ` + printerColumns + `
		FROM printers WHERE id = ?
	`

	GetPrinterByMAC = `
		SELECT ` + printerColumns + `
		FROM printers WHERE mac_address = ?
	`

	ListPrinters = `
		SELECT ` + printerColumns + `
		FROM printers ORDER BY name ASC, id ASC
	`

	// Contact updates never blank out a known name or uid: COALESCE(NULLIF(?, ''), col)
	// keeps the stored value when the device sends nothing.
	TouchPrinter = `
		UPDATE printers SET
			uid = COALESCE(NULLIF(?, ''), uid),
			name = COALESCE(NULLIF(?, ''), name),
			last_seen_at = ?,
			last_status_json = CASE WHEN ? != '' THEN ? ELSE last_status_json END,
			last_error = '',
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	UpdatePrinterName = `
		UPDATE printers SET name = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`

	UpdatePrinterActive = `
		UPDATE printers SET is_active = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`

	SetPrinterLastError = `
		UPDATE printers SET last_error = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`

	MostRecentlySeenActivePrinter = `
		SELECT ` + printerColumns + `
		FROM printers WHERE is_active = 1 AND last_seen_at IS NOT NULL
		ORDER BY last_seen_at DESC LIMIT 1
	`
)

const jobColumns = `id, printer_id, order_id, order_number, copy_type, source, status, job_token, requested_mime, payload_cache, failure_code, failure_message, requested_at, delivered_at, completed_at`

const (
	InsertJob = `
		INSERT INTO print_jobs (printer_id, order_id, order_number, copy_type, source, status, job_token, requested_mime, payload_cache, requested_at)
		VALUES (?, ?, ?, ?, ?, 'QUEUED', ?, ?, ?, ?)
	`

	GetJobByID = `
		SELECT ` + jobColumns + `
		FROM print_jobs WHERE id = ?
	`

	GetJobByToken = `
		SELECT ` + jobColumns + `
		FROM print_jobs WHERE job_token = ?
	`

	// Dedup lookup for automatic enqueues: any live-or-done job for the same
	// order and copy type suppresses a new one.
	FindDedupJob = `
		SELECT ` + jobColumns + `
		FROM print_jobs
		WHERE order_id = ? AND copy_type = ? AND status IN ('QUEUED', 'DELIVERED', 'COMPLETED')
		ORDER BY requested_at ASC, id ASC LIMIT 1
	`

	// Poll selection: FIFO within a status class, QUEUED before DELIVERED-retry.
	NextQueuedJobForPrinter = `
		SELECT ` + jobColumns + `
		FROM print_jobs
		WHERE printer_id = ? AND status = 'QUEUED'
		ORDER BY requested_at ASC, id ASC LIMIT 1
	`

	NextDeliveredJobForPrinter = `
		SELECT ` + jobColumns + `
		FROM print_jobs
		WHERE printer_id = ? AND status = 'DELIVERED'
		ORDER BY requested_at ASC, id ASC LIMIT 1
	`

	OldestOpenJobForPrinter = `
		SELECT ` + jobColumns + `
		FROM print_jobs
		WHERE printer_id = ? AND status IN ('QUEUED', 'DELIVERED')
		ORDER BY requested_at ASC, id ASC LIMIT 1
	`

	// Conditional transitions: the WHERE status guard makes each of these a
	// single atomic claim. Zero rows affected means another request already
	// moved the job on, which callers treat as a no-op.
	MarkJobDelivered = `
		UPDATE print_jobs
		SET status = 'DELIVERED', delivered_at = ?, payload_cache = ?
		WHERE id = ? AND status = 'QUEUED'
	`

	MarkJobCompleted = `
		UPDATE print_jobs
		SET status = 'COMPLETED', completed_at = ?, failure_code = '', failure_message = ''
		WHERE id = ? AND status = 'DELIVERED'
	`

	MarkJobFailed = `
		UPDATE print_jobs
		SET status = 'FAILED', completed_at = ?, failure_code = ?, failure_message = ?
		WHERE id = ? AND status IN ('QUEUED', 'DELIVERED')
	`
)

const (
	InsertOrder = `
		INSERT INTO orders (number, customer_name, customer_phone, pickup_at, notes, subtotal_text, tax_text, total_text)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	InsertOrderLine = `
		INSERT INTO order_lines (order_id, position, qty, name, kitchen_name)
		VALUES (?, ?, ?, ?, ?)
	`

	InsertLineSelection = `
		INSERT INTO line_selections (line_id, position, text, kitchen_text, indent_level)
		VALUES (?, ?, ?, ?, ?)
	`

	GetOrderByID = `
		SELECT id, number, customer_name, customer_phone, pickup_at, notes, subtotal_text, tax_text, total_text, created_at
		FROM orders WHERE id = ?
	`

	GetOrderByNumber = `
		SELECT id, number, customer_name, customer_phone, pickup_at, notes, subtotal_text, tax_text, total_text, created_at
		FROM orders WHERE number = ?
	`

	GetOrderLines = `
		SELECT id, order_id, position, qty, name, kitchen_name
		FROM order_lines WHERE order_id = ? ORDER BY position ASC
	`

	GetLineSelections = `
		SELECT id, line_id, position, text, kitchen_text, indent_level
		FROM line_selections WHERE line_id = ? ORDER BY position ASC
	`
)

const (
	GetSetting = `SELECT value, updated_at FROM settings WHERE key = ?`

	SetSetting = `
		INSERT INTO settings (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = ?, updated_at = CURRENT_TIMESTAMP
	`

	DeleteSetting = `DELETE FROM settings WHERE key = ?`
)
