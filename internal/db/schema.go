package db

var schemaMigrations = []Migration{
	{
		Version: "001_printers",
		SQL: `
			CREATE TABLE printers (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				mac_address TEXT NOT NULL UNIQUE,
				uid TEXT NOT NULL DEFAULT '',
				name TEXT NOT NULL DEFAULT '',
				is_active INTEGER NOT NULL DEFAULT 1,
				last_seen_at DATETIME,
				last_status_json TEXT NOT NULL DEFAULT '',
				last_error TEXT NOT NULL DEFAULT '',
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
		`,
	},
	{
		Version: "002_orders",
		SQL: `
			CREATE TABLE orders (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				number TEXT NOT NULL UNIQUE,
				customer_name TEXT NOT NULL DEFAULT '',
				customer_phone TEXT NOT NULL DEFAULT '',
				pickup_at DATETIME,
				notes TEXT NOT NULL DEFAULT '',
				subtotal_text TEXT NOT NULL DEFAULT '',
				tax_text TEXT NOT NULL DEFAULT '',
				total_text TEXT NOT NULL DEFAULT '',
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);

			CREATE TABLE order_lines (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				order_id INTEGER NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
				position INTEGER NOT NULL,
				qty INTEGER NOT NULL,
				name TEXT NOT NULL,
				kitchen_name TEXT NOT NULL DEFAULT ''
			);

			CREATE TABLE line_selections (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				line_id INTEGER NOT NULL REFERENCES order_lines(id) ON DELETE CASCADE,
				position INTEGER NOT NULL,
				text TEXT NOT NULL,
				kitchen_text TEXT NOT NULL DEFAULT '',
				indent_level INTEGER NOT NULL DEFAULT 0
			);

			CREATE INDEX idx_order_lines_order ON order_lines(order_id, position);
			CREATE INDEX idx_line_selections_line ON line_selections(line_id, position);
		`,
	},
	{
		Version: "003_print_jobs",
		SQL: `
			CREATE TABLE print_jobs (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				printer_id INTEGER NOT NULL REFERENCES printers(id),
				order_id INTEGER NOT NULL REFERENCES orders(id),
				order_number TEXT NOT NULL,
				copy_type TEXT NOT NULL,
				source TEXT NOT NULL,
				status TEXT NOT NULL DEFAULT 'QUEUED',
				job_token TEXT NOT NULL UNIQUE,
				requested_mime TEXT NOT NULL DEFAULT 'image/png',
				payload_cache BLOB,
				failure_code TEXT NOT NULL DEFAULT '',
				failure_message TEXT NOT NULL DEFAULT '',
				requested_at DATETIME NOT NULL,
				delivered_at DATETIME,
				completed_at DATETIME
			);

			CREATE INDEX idx_print_jobs_printer_status ON print_jobs(printer_id, status, requested_at);
			CREATE INDEX idx_print_jobs_order_copy ON print_jobs(order_id, copy_type, status);
		`,
	},
	{
		Version: "004_settings",
		SQL: `
			CREATE TABLE settings (
				key TEXT PRIMARY KEY,
				value TEXT NOT NULL,
				updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
		`,
	},
}
