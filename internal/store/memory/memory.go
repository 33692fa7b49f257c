package memory

import (
	"context"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/store"
)

type Store struct {
	mu           sync.RWMutex
	items        map[string]domain.Item
	sales        []domain.Sale
	usersByEmail map[string]domain.UserAccount
	deletedUsers map[string]domain.DeletedUser
	notes        map[string]domain.Note
}

func New() *Store {
	return &Store{
		items:        make(map[string]domain.Item),
		sales:        make([]domain.Sale, 0, 128),
		usersByEmail: make(map[string]domain.UserAccount),
		deletedUsers: make(map[string]domain.DeletedUser),
		notes:        make(map[string]domain.Note),
	}
}

// seedUsers builds the initial accounts for dev/demo mode. Credentials are
// read from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD; hardcoded dev
// defaults are used with a warning when unset. These credentials are never
// used in production (the backend uses PostgreSQL when DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Warn().Msg("memory store: using default dev credentials; set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		email    string
		username string
		password string
		role     string
	}{
		{"admin@pos.local", "admin", adminPwd, domain.RoleAdmin},
		{"cashier@pos.local", "cashier", cashierPwd, domain.RoleCashier},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatal().Err(err).Str("email", u.email).Msg("memory store: failed to hash seed password")
		}
		users[u.email] = domain.UserAccount{
			ID:           uuid.NewString(),
			Email:        u.email,
			Username:     u.username,
			PasswordHash: string(hash),
			Role:         u.role,
			CreatedAt:    now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	s := New()
	s.usersByEmail = seedUsers()

	now := time.Now().UTC()
	for _, it := range []struct {
		name  string
		price string
		qty   *int
	}{
		{"Americano", "2.50", intPtr(40)},
		{"Soda", "1.50", intPtr(24)},
		{"Bottled Water", "1.00", nil},
	} {
		item := domain.Item{
			ID:        uuid.NewString(),
			Name:      it.name,
			Price:     decimal.RequireFromString(it.price),
			Quantity:  it.qty,
			CreatedAt: now,
		}
		s.items[item.ID] = item
	}
	return s
}

func intPtr(v int) *int {
	return &v
}

func cloneItem(item domain.Item) domain.Item {
	out := item
	if item.Quantity != nil {
		qty := *item.Quantity
		out.Quantity = &qty
	}
	if item.CostPrice != nil {
		cost := *item.CostPrice
		out.CostPrice = &cost
	}
	return out
}

func cloneSale(sale domain.Sale) domain.Sale {
	out := sale
	out.CartDetails = make([]domain.CartItem, len(sale.CartDetails))
	copy(out.CartDetails, sale.CartDetails)
	return out
}

func (s *Store) ListItems(_ context.Context) ([]domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]domain.Item, 0, len(s.items))
	for _, item := range s.items {
		items = append(items, cloneItem(item))
	}
	slices.SortFunc(items, func(a, b domain.Item) int {
		return strings.Compare(a.Name, b.Name)
	})
	return items, nil
}

func (s *Store) GetItemByID(_ context.Context, id string) (*domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := cloneItem(item)
	return &out, nil
}

func (s *Store) CreateItem(_ context.Context, item domain.Item) (*domain.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if item.ID == "" || item.Name == "" || !item.Price.IsPositive() {
		return nil, store.ErrInvalidTransaction
	}
	if item.Quantity != nil && *item.Quantity < 0 {
		return nil, store.ErrInvalidTransaction
	}
	if _, exists := s.items[item.ID]; exists {
		return nil, store.ErrConflict
	}

	s.items[item.ID] = cloneItem(item)
	created := cloneItem(item)
	return &created, nil
}

func (s *Store) UpdateItem(_ context.Context, item domain.Item) (*domain.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if item.ID == "" || item.Name == "" || !item.Price.IsPositive() {
		return nil, store.ErrInvalidTransaction
	}
	if item.Quantity != nil && *item.Quantity < 0 {
		return nil, store.ErrInvalidTransaction
	}
	if _, exists := s.items[item.ID]; !exists {
		return nil, store.ErrNotFound
	}

	s.items[item.ID] = cloneItem(item)
	updated := cloneItem(item)
	return &updated, nil
}

func (s *Store) DeleteItem(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.items[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.items, id)
	return nil
}

func (s *Store) CreateSale(_ context.Context, sale domain.Sale) (*domain.Sale, []domain.InventoryUpdate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sale.ID == "" || sale.CashierID == "" || len(sale.CartDetails) == 0 {
		return nil, nil, store.ErrInvalidTransaction
	}

	// First pass checks every tracked line so a shortage leaves no partial
	// effect; only then is anything mutated. Requests are aggregated per item
	// id so a cart with duplicate lines cannot pass the check line by line
	// and drive the stored quantity negative.
	needed := make(map[string]int, len(sale.CartDetails))
	for _, line := range sale.CartDetails {
		item, ok := s.items[line.ID]
		if !ok || item.Quantity == nil {
			continue
		}
		needed[line.ID] += line.Quantity
		if *item.Quantity < needed[line.ID] {
			return nil, nil, &store.InsufficientStockError{
				ItemName:  item.Name,
				Available: *item.Quantity,
				Requested: needed[line.ID],
			}
		}
	}

	updates := make([]domain.InventoryUpdate, 0, len(sale.CartDetails))
	for _, line := range sale.CartDetails {
		item, ok := s.items[line.ID]
		if !ok || item.Quantity == nil {
			continue
		}
		oldQty := *item.Quantity
		newQty := oldQty - line.Quantity
		item.Quantity = &newQty
		s.items[line.ID] = item
		updates = append(updates, domain.InventoryUpdate{
			ItemName:    item.Name,
			OldQuantity: oldQty,
			NewQuantity: newQty,
		})
	}

	s.sales = append(s.sales, cloneSale(sale))
	created := cloneSale(sale)
	return &created, updates, nil
}

func (s *Store) ListSales(_ context.Context, filter store.SaleFilter) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, 0, len(s.sales))
	for _, sale := range s.sales {
		if filter.CashierID != "" && sale.CashierID != filter.CashierID {
			continue
		}
		if filter.Start != nil && sale.CreatedAt.Before(*filter.Start) {
			continue
		}
		if filter.End != nil && !sale.CreatedAt.Before(*filter.End) {
			continue
		}
		sales = append(sales, cloneSale(sale))
	}
	slices.SortFunc(sales, func(a, b domain.Sale) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	return sales, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.ID == "" || user.Email == "" {
		return store.ErrInvalidTransaction
	}
	if _, exists := s.usersByEmail[user.Email]; exists {
		return store.ErrConflict
	}
	if _, shadowed := s.deletedUsers[user.Email]; shadowed {
		return store.ErrConflict
	}
	for _, existing := range s.usersByEmail {
		if existing.Username == user.Username || existing.ID == user.ID {
			return store.ErrConflict
		}
	}

	s.usersByEmail[user.Email] = user
	return nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.usersByEmail[email]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := user
	return &out, nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, user := range s.usersByEmail {
		if user.Username == username {
			out := user
			return &out, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) GetUsersByIDs(_ context.Context, ids []string) (map[string]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.UserAccount, len(ids))
	for _, id := range ids {
		for _, user := range s.usersByEmail {
			if user.ID == id {
				result[id] = user
				break
			}
		}
	}
	return result, nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByEmail))
	for _, user := range s.usersByEmail {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Email, b.Email)
	})
	return users, nil
}

func (s *Store) ResolveAccount(_ context.Context, email string) (domain.AccountState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if user, ok := s.usersByEmail[email]; ok {
		active := user
		return domain.AccountState{Active: &active}, nil
	}
	if shadow, ok := s.deletedUsers[email]; ok {
		deleted := shadow
		return domain.AccountState{Deleted: &deleted}, nil
	}
	return domain.AccountState{}, store.ErrNotFound
}

func (s *Store) DeleteUser(_ context.Context, email string, deletedBy string, reason string, at time.Time) (*domain.DeletedUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.usersByEmail[email]
	if !ok {
		return nil, store.ErrNotFound
	}

	shadow := domain.DeletedUser{
		ID:                user.ID,
		Email:             user.Email,
		Username:          user.Username,
		Role:              user.Role,
		OriginalCreatedAt: user.CreatedAt,
		DeletedAt:         at,
		DeletedBy:         deletedBy,
		Reason:            reason,
	}
	delete(s.usersByEmail, email)
	s.deletedUsers[email] = shadow

	out := shadow
	return &out, nil
}

func (s *Store) RestoreUser(_ context.Context, email string, passwordHash string) (*domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	shadow, ok := s.deletedUsers[email]
	if !ok {
		return nil, store.ErrNotFound
	}

	user := domain.UserAccount{
		ID:           shadow.ID,
		Email:        shadow.Email,
		Username:     shadow.Username,
		PasswordHash: passwordHash,
		Role:         shadow.Role,
		CreatedAt:    shadow.OriginalCreatedAt,
	}
	delete(s.deletedUsers, email)
	s.usersByEmail[email] = user

	out := user
	return &out, nil
}

func (s *Store) ListDeletedUsers(_ context.Context) ([]domain.DeletedUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shadows := make([]domain.DeletedUser, 0, len(s.deletedUsers))
	for _, shadow := range s.deletedUsers {
		shadows = append(shadows, shadow)
	}
	slices.SortFunc(shadows, func(a, b domain.DeletedUser) int {
		if a.DeletedAt.Equal(b.DeletedAt) {
			return strings.Compare(a.Email, b.Email)
		}
		if a.DeletedAt.After(b.DeletedAt) {
			return -1
		}
		return 1
	})
	return shadows, nil
}

func (s *Store) GetDeletedUsersByIDs(_ context.Context, ids []string) (map[string]domain.DeletedUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]domain.DeletedUser, len(ids))
	for _, id := range ids {
		for _, shadow := range s.deletedUsers {
			if shadow.ID == id {
				result[id] = shadow
				break
			}
		}
	}
	return result, nil
}

func (s *Store) CreateNote(_ context.Context, note domain.Note) (*domain.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if note.ID == "" || note.CashierID == "" || note.Title == "" {
		return nil, store.ErrInvalidTransaction
	}
	if _, exists := s.notes[note.ID]; exists {
		return nil, store.ErrConflict
	}

	s.notes[note.ID] = note
	created := note
	return &created, nil
}

func (s *Store) GetNoteByID(_ context.Context, id string) (*domain.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	note, ok := s.notes[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := note
	return &out, nil
}

func (s *Store) ListNotes(_ context.Context, cashierID string) ([]domain.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	notes := make([]domain.Note, 0, len(s.notes))
	for _, note := range s.notes {
		if cashierID != "" && note.CashierID != cashierID {
			continue
		}
		notes = append(notes, note)
	}
	slices.SortFunc(notes, func(a, b domain.Note) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	return notes, nil
}

func (s *Store) UpdateNote(_ context.Context, note domain.Note) (*domain.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if note.ID == "" || note.Title == "" {
		return nil, store.ErrInvalidTransaction
	}
	if _, exists := s.notes[note.ID]; !exists {
		return nil, store.ErrNotFound
	}

	s.notes[note.ID] = note
	updated := note
	return &updated, nil
}

func (s *Store) DeleteNote(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.notes[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.notes, id)
	return nil
}
