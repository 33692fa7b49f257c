package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"retailpos/backend/internal/domain"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("already exists")
	ErrInvalidTransaction = errors.New("invalid transaction")
)

// InsufficientStockError names the first cart line that could not be
// satisfied. When a store returns it, the whole checkout has been rolled
// back and no stock was touched.
type InsufficientStockError struct {
	ItemName  string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("Insufficient stock for %s. Available: %d, Requested: %d", e.ItemName, e.Available, e.Requested)
}

// SaleFilter narrows ListSales. Start is inclusive, End is exclusive.
type SaleFilter struct {
	CashierID string
	Start     *time.Time
	End       *time.Time
}

type Repository interface {
	ListItems(ctx context.Context) ([]domain.Item, error)
	GetItemByID(ctx context.Context, id string) (*domain.Item, error)
	CreateItem(ctx context.Context, item domain.Item) (*domain.Item, error)
	UpdateItem(ctx context.Context, item domain.Item) (*domain.Item, error)
	DeleteItem(ctx context.Context, id string) error

	// CreateSale appends the sale and applies a conditional decrement for
	// every cart line whose item tracks stock, all in a single transaction.
	// Items with nil quantity are never mutated. Returns
	// *InsufficientStockError when any line cannot be satisfied; in that
	// case nothing is persisted.
	CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, []domain.InventoryUpdate, error)
	ListSales(ctx context.Context, filter SaleFilter) ([]domain.Sale, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	GetUserByEmail(ctx context.Context, email string) (*domain.UserAccount, error)
	GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error)
	GetUsersByIDs(ctx context.Context, ids []string) (map[string]domain.UserAccount, error)
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)

	// ResolveAccount maps an email to exactly one of an active account or a
	// deleted shadow record, or ErrNotFound when it matches neither.
	ResolveAccount(ctx context.Context, email string) (domain.AccountState, error)
	// DeleteUser moves an active account into the deleted_users shadow.
	// ErrNotFound when no active account has the email.
	DeleteUser(ctx context.Context, email string, deletedBy string, reason string, at time.Time) (*domain.DeletedUser, error)
	// RestoreUser moves a shadow record back to an active account keeping
	// the original id, role, username and creation time. ErrNotFound when
	// no shadow record has the email.
	RestoreUser(ctx context.Context, email string, passwordHash string) (*domain.UserAccount, error)
	ListDeletedUsers(ctx context.Context) ([]domain.DeletedUser, error)
	GetDeletedUsersByIDs(ctx context.Context, ids []string) (map[string]domain.DeletedUser, error)

	CreateNote(ctx context.Context, note domain.Note) (*domain.Note, error)
	GetNoteByID(ctx context.Context, id string) (*domain.Note, error)
	ListNotes(ctx context.Context, cashierID string) ([]domain.Note, error)
	UpdateNote(ctx context.Context, note domain.Note) (*domain.Note, error)
	DeleteNote(ctx context.Context, id string) error
}
