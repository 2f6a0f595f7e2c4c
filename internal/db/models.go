package db

import (
	"time"
)

type Printer struct {
	ID             int64      `json:"id"`
	MACAddress     string     `json:"mac_address"`
	UID            string     `json:"uid,omitempty"`
	Name           string     `json:"name"`
	IsActive       bool       `json:"is_active"`
	LastSeenAt     *time.Time `json:"last_seen_at,omitempty"`
	LastStatusJSON string     `json:"last_status_json,omitempty"`
	LastError      string     `json:"last_error,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

type PrintJob struct {
	ID             int64      `json:"id"`
	PrinterID      int64      `json:"printer_id"`
	OrderID        int64      `json:"order_id"`
	OrderNumber    string     `json:"order_number"`
	CopyType       string     `json:"copy_type"`
	Source         string     `json:"source"`
	Status         string     `json:"status"`
	JobToken       string     `json:"job_token"`
	RequestedMime  string     `json:"requested_mime"`
	PayloadCache   []byte     `json:"-"`
	FailureCode    string     `json:"failure_code,omitempty"`
	FailureMessage string     `json:"failure_message,omitempty"`
	RequestedAt    time.Time  `json:"requested_at"`
	DeliveredAt    *time.Time `json:"delivered_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

type Order struct {
	ID            int64       `json:"id"`
	Number        string      `json:"number"`
	CustomerName  string      `json:"customer_name"`
	CustomerPhone string      `json:"customer_phone,omitempty"`
	PickupAt      *time.Time  `json:"pickup_at,omitempty"`
	Notes         string      `json:"notes,omitempty"`
	SubtotalText  string      `json:"subtotal_text,omitempty"`
	TaxText       string      `json:"tax_text,omitempty"`
	TotalText     string      `json:"total_text,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	Lines         []OrderLine `json:"lines"`
}

type OrderLine struct {
	ID          int64           `json:"id"`
	OrderID     int64           `json:"-"`
	Position    int             `json:"-"`
	Qty         int             `json:"qty"`
	Name        string          `json:"name"`
	KitchenName string          `json:"kitchen_name,omitempty"`
	Selections  []LineSelection `json:"selections,omitempty"`
}

type LineSelection struct {
	ID          int64  `json:"id"`
	LineID      int64  `json:"-"`
	Position    int    `json:"-"`
	Text        string `json:"text"`
	KitchenText string `json:"kitchen_text,omitempty"`
	IndentLevel int    `json:"indent_level"`
}

type Setting struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

type JobFilter struct {
	PrinterID int64
	OrderID   int64
	Status    string
	Limit     int
	Offset    int
}
