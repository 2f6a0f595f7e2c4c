package core

import "errors"

type JobStatus string

const (
	JobStatusQueued    JobStatus = "QUEUED"
	JobStatusDelivered JobStatus = "DELIVERED"
	JobStatusCompleted JobStatus = "COMPLETED"
	JobStatusFailed    JobStatus = "FAILED"
)

type CopyType string

const (
	CopyTypeFront   CopyType = "FRONT"
	CopyTypeKitchen CopyType = "KITCHEN"
)

func (c CopyType) Valid() bool {
	return c == CopyTypeFront || c == CopyTypeKitchen
}

type JobSource string

const (
	SourceManual JobSource = "MANUAL"
	SourceAuto   JobSource = "AUTO"
)

func (s JobSource) Valid() bool {
	return s == SourceManual || s == SourceAuto
}

// FailureCodePayload marks a job that could not be rendered at fetch time.
// Device-reported failure codes are stored verbatim instead.
const FailureCodePayload = "PAYLOAD_ERROR"

// Settings keys read by the queue service at enqueue time.
const (
	SettingAutoPrintEnabled   = "auto_print_enabled"
	SettingAutoPrintPrinterID = "auto_print_printer_id"
)

var (
	ErrPrinterRequired   = errors.New("printer required")
	ErrPrinterNotFound   = errors.New("printer not found")
	ErrOrderNotFound     = errors.New("order not found")
	ErrAutoPrintDisabled = errors.New("auto print disabled")
	ErrNoActivePrinter   = errors.New("no active printer")
	ErrRenderFailed      = errors.New("render failed")
	ErrInvalidMAC        = errors.New("invalid mac address")
)
