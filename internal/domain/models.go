package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Item is a catalog entry. Quantity is nil for items that do not track
// stock; such items can be sold without limit and are never decremented.
type Item struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Price     decimal.Decimal  `json:"price"`
	CostPrice *decimal.Decimal `json:"cost_price,omitempty"`
	Quantity  *int             `json:"quantity"`
	CreatedAt time.Time        `json:"created_at"`
}

type ItemCreateRequest struct {
	Name      string           `json:"name"`
	Price     decimal.Decimal  `json:"price"`
	CostPrice *decimal.Decimal `json:"cost_price,omitempty"`
	Quantity  *int             `json:"quantity,omitempty"`
}

type ItemUpdateRequest struct {
	Name      *string          `json:"name,omitempty"`
	Price     *decimal.Decimal `json:"price,omitempty"`
	CostPrice *decimal.Decimal `json:"cost_price,omitempty"`
	Quantity  *int             `json:"quantity,omitempty"`
	Unlimited *bool            `json:"unlimited,omitempty"`
}

// CartItem is a point-in-time snapshot of an Item embedded in a Sale.
// It never references the live catalog row: later price or name edits
// must not rewrite history.
type CartItem struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
}

// Sale is an append-only ledger entry. Sales are never updated or deleted.
type Sale struct {
	ID            string          `json:"id"`
	CashierID     string          `json:"cashier_id"`
	CreatedAt     time.Time       `json:"created_at"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	PaymentMethod string          `json:"payment_method"`
	CartDetails   []CartItem      `json:"cart_details"`
}

type CheckoutRequest struct {
	TotalAmount   decimal.Decimal `json:"total_amount"`
	PaymentMethod string          `json:"payment_method"`
	CartDetails   []CartItem      `json:"cart_details"`
}

type InventoryUpdate struct {
	ItemName    string `json:"item_name"`
	OldQuantity int    `json:"old_quantity"`
	NewQuantity int    `json:"new_quantity"`
}

type CheckoutResponse struct {
	Success          bool              `json:"success"`
	SaleID           string            `json:"sale_id"`
	InventoryUpdates []InventoryUpdate `json:"inventory_updates"`
}

type UserAccount struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// DeletedUser is the shadow record kept when an account is soft-deleted.
// It preserves the original account id so historical sales keep resolving.
type DeletedUser struct {
	ID                string    `json:"id"`
	Email             string    `json:"email"`
	Username          string    `json:"username"`
	Role              string    `json:"role"`
	OriginalCreatedAt time.Time `json:"original_created_at"`
	DeletedAt         time.Time `json:"deleted_at"`
	DeletedBy         string    `json:"deleted_by"`
	Reason            string    `json:"reason"`
}

// AccountState is the resolved state of an email: exactly one of Active or
// Deleted is non-nil. An email can never be in both tables at once.
type AccountState struct {
	Active  *UserAccount
	Deleted *DeletedUser
}

type Note struct {
	ID        string    `json:"id"`
	CashierID string    `json:"cashier_id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type NoteCreateRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

type NoteUpdateRequest struct {
	Title   *string `json:"title,omitempty"`
	Content *string `json:"content,omitempty"`
}

type NoteView struct {
	Note
	CashierEmail string `json:"cashier_email"`
}

type LoginRequest struct {
	Identity string `json:"identity"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Email       string `json:"email"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	ID    string
	Email string
	Role  string
}

type AccountCreateRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type AccountDeleteRequest struct {
	Email  string `json:"email"`
	Reason string `json:"reason"`
}

type AccountRestoreRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type EmailLookupRequest struct {
	IDs []string `json:"ids"`
}

type UsernameLookupRequest struct {
	Username string `json:"username"`
}

// ReportFilter narrows sales reports and analytics. All dimensions are
// optional and composable. When both StartDate and EndDate are set they
// take priority over Period.
type ReportFilter struct {
	Search    string `json:"search"`
	CashierID string `json:"cashier_id"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Period    string `json:"period"`
}

type ReportStats struct {
	TotalRevenue       decimal.Decimal `json:"total_revenue"`
	TransactionCount   int             `json:"transaction_count"`
	CashCount          int             `json:"cash_count"`
	TransferCount      int             `json:"transfer_count"`
	AverageTransaction decimal.Decimal `json:"average_transaction"`
}

type SaleView struct {
	Sale
	CashierLabel string `json:"cashier_label"`
}

type SalesReport struct {
	Sales []SaleView  `json:"sales"`
	Stats ReportStats `json:"stats"`
}

type DailyRevenue struct {
	Date         string          `json:"date"`
	Revenue      decimal.Decimal `json:"revenue"`
	Transactions int             `json:"transactions"`
}

type ItemQuantityRank struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

type ItemRevenueRank struct {
	Name    string          `json:"name"`
	Revenue decimal.Decimal `json:"revenue"`
}

type PaymentSlice struct {
	Method  string          `json:"method"`
	Count   int             `json:"count"`
	Revenue decimal.Decimal `json:"revenue"`
}

type CashierRevenue struct {
	CashierID    string          `json:"cashier_id"`
	Label        string          `json:"label"`
	Revenue      decimal.Decimal `json:"revenue"`
	Transactions int             `json:"transactions"`
}

type SalesAnalytics struct {
	Stats              ReportStats        `json:"stats"`
	DailyRevenue       []DailyRevenue     `json:"daily_revenue"`
	TopItemsByQuantity []ItemQuantityRank `json:"top_items_by_quantity"`
	TopItemsByRevenue  []ItemRevenueRank  `json:"top_items_by_revenue"`
	PaymentBreakdown   []PaymentSlice     `json:"payment_breakdown"`
	CashierBreakdown   []CashierRevenue   `json:"cashier_breakdown"`
}

type SheetStatus struct {
	Configured bool   `json:"configured"`
	Reachable  bool   `json:"reachable"`
	Error      string `json:"error,omitempty"`
}

const (
	PaymentCash     = "Cash"
	PaymentTransfer = "Transfer"
)

const (
	RoleAdmin   = "admin"
	RoleCashier = "cashier"
)

const (
	PeriodToday     = "today"
	PeriodPastWeek  = "pastWeek"
	PeriodThisMonth = "thisMonth"
	PeriodAllTime   = "allTime"
)
