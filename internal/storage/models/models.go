package models

import "time"

// Tenant-side rows. Every tenant table carries yacht_id and every query
// against one filters on it.

type Part struct {
	ID           string
	YachtID      string
	Name         string
	Description  string
	PartNumber   string
	Manufacturer string
	Model        string
	Location     string
	Quantity     int
	MinQuantity  int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Equipment struct {
	ID           string
	YachtID      string
	Name         string
	Description  string
	Manufacturer string
	Model        string
	SerialNumber string
	Location     string
	System       string
	RunningHours float64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Fault struct {
	ID            string
	YachtID       string
	Code          string
	Title         string
	Description   string
	EquipmentID   string
	EquipmentName string
	Severity      string
	ReportedBy    string
	ReportedAt    time.Time
	ResolvedAt    *time.Time
}

type WorkOrder struct {
	ID            string
	YachtID       string
	Number        string
	Title         string
	Description   string
	EquipmentID   string
	EquipmentName string
	Status        string
	Priority      string
	AssignedTo    string
	DueDate       *time.Time
	CreatedBy     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// SearchDocument is one ingested manual/certificate chunk row in
// search_index; the matching embedding lives in the vector collection under
// the same chunk ID.
type SearchDocument struct {
	ID         string
	YachtID    string
	DocID      string
	Title      string
	Content    string
	DocType    string
	ChunkIndex int
	CreatedAt  time.Time
}

// Master-side rows, kept on a physically separate database from tenant data.

type IdempotencyRecord struct {
	Key            string
	YachtID        string
	ActionID       string
	RequestHash    string
	Status         string
	ResponseStatus int
	ResponseBody   []byte
	CreatedAt      time.Time
	CompletedAt    *time.Time
}
