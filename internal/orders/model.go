// Package orders owns the order coordination state machine: the mutable
// per-order record, its item facets, the derived counters and progress
// policy, and the access log of who has an order open.
package orders

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the order-level lifecycle state.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
)

// LogisticsType enumerates the recognized delivery methods. Accepted
// case/space-insensitive on input, normalized before storage.
type LogisticsType string

const (
	LogisticsLalamove      LogisticsType = "lalamove"
	LogisticsCorreios      LogisticsType = "correios"
	LogisticsMelhorEnvio   LogisticsType = "melhor_envio"
	LogisticsRetirada      LogisticsType = "retirada"
	LogisticsEntrega       LogisticsType = "entrega"
	LogisticsClienteNaLoja LogisticsType = "cliente_na_loja"
	LogisticsOnibus        LogisticsType = "onibus"
)

var validLogisticsTypes = map[LogisticsType]bool{
	LogisticsLalamove: true, LogisticsCorreios: true, LogisticsMelhorEnvio: true,
	LogisticsRetirada: true, LogisticsEntrega: true, LogisticsClienteNaLoja: true,
	LogisticsOnibus: true,
}

// NormalizeLogisticsType folds case/space variants to the canonical form.
func NormalizeLogisticsType(raw string) (LogisticsType, bool) {
	normalized := LogisticsType(strings.ToLower(strings.ReplaceAll(strings.TrimSpace(raw), " ", "_")))
	return normalized, validLogisticsTypes[normalized]
}

// PackageType enumerates the recognized package containers.
type PackageType string

const (
	PackageCaixa  PackageType = "caixa"
	PackageSacola PackageType = "sacola"
)

var validPackageTypes = map[PackageType]bool{PackageCaixa: true, PackageSacola: true}

// NormalizePackageType folds case/space variants to the canonical form.
func NormalizePackageType(raw string) (PackageType, bool) {
	normalized := PackageType(strings.ToLower(strings.ReplaceAll(strings.TrimSpace(raw), " ", "_")))
	return normalized, validPackageTypes[normalized]
}

// Order is the authoritative mutable record the state machine (G) owns.
type Order struct {
	ID             int64
	OrderNumber    string
	ClientName     string
	SellerName     string
	OrderDate      time.Time
	TotalValue     decimal.Decimal
	LogisticsType  LogisticsType
	PackageType    PackageType
	Observations   string
	ItemsCount     int
	ItemsSeparated int
	ItemsInPurchase int
	ItemsNotSent   int
	Status         Status
	CreatedAt      time.Time
	UpdatedAt      time.Time
	CompletedAt    *time.Time
	Items          []*OrderItem
}

// OrderItem is one line of an Order, owned by exactly one order.
type OrderItem struct {
	ID               int64
	OrderID          int64
	ProductCode      string
	ProductReference string
	ProductName      string
	Quantity         int
	UnitPrice        decimal.Decimal
	TotalPrice       decimal.Decimal

	IsSeparated  bool
	SeparatedAt  *time.Time
	SeparatedBy  *int64

	SentToPurchase bool
	PurchaseAt     *time.Time
	PurchaseBy     *int64

	NotSent       bool
	NotSentAt     *time.Time
	NotSentBy     *int64
	NotSentReason string
}

// PurchaseItem is a 1:1 purchase-queue entry for an OrderItem sent to
// purchase.
type PurchaseItem struct {
	ID              int64      `json:"id"`
	OrderItemID     int64      `json:"order_item_id"`
	RequestedAt     time.Time  `json:"requested_at"`
	RequestedBy     int64      `json:"requested_by"`
	IsCompleted     bool       `json:"is_completed"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	CompletedBy     *int64     `json:"completed_by,omitempty"`
	Notes           string     `json:"notes,omitempty"`
	CompletionNotes string     `json:"completion_notes,omitempty"`
}

// OrderAccess is a session-like row recording which operator opened which
// order and when; left_at=nil means the session is live.
type OrderAccess struct {
	ID         int64
	OrderID    int64
	UserID     int64
	AccessedAt time.Time
	LeftAt     *time.Time
}

// ItemUpdate is one per-item change in a batch apply call (§4.13).
type ItemUpdate struct {
	ItemID         int64
	IsSeparated    *bool
	SentToPurchase *bool
	NotSent        *bool
	NotSentReason  string
}

// Transition describes one applied facet change, used by the event
// publisher (L) to decide which events a batch produced.
type Transition struct {
	ItemID         int64
	SeparatedNowTrue bool
	PurchaseNowTrue  bool
	NotSentNowTrue   bool
}

// BatchResult is what apply_batch returns to the orchestrator (M): the
// refreshed order plus the ordered list of facet transitions that
// occurred, in update order.
type BatchResult struct {
	Order       *Order
	Transitions []Transition
	NewlyCompleted bool
}
