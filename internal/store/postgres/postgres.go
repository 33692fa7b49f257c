package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/store"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func scanQuantity(raw sql.NullInt64) *int {
	if !raw.Valid {
		return nil
	}
	qty := int(raw.Int64)
	return &qty
}

func scanCost(raw decimal.NullDecimal) *decimal.Decimal {
	if !raw.Valid {
		return nil
	}
	cost := raw.Decimal
	return &cost
}

func costParam(cost *decimal.Decimal) decimal.NullDecimal {
	if cost == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *cost, Valid: true}
}

func quantityParam(qty *int) sql.NullInt64 {
	if qty == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*qty), Valid: true}
}

func (s *Store) ListItems(ctx context.Context) ([]domain.Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, price, cost_price, quantity, created_at
		FROM items
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.Item, 0, 128)
	for rows.Next() {
		var item domain.Item
		var cost decimal.NullDecimal
		var qty sql.NullInt64
		if err := rows.Scan(&item.ID, &item.Name, &item.Price, &cost, &qty, &item.CreatedAt); err != nil {
			return nil, err
		}
		item.CostPrice = scanCost(cost)
		item.Quantity = scanQuantity(qty)
		item.CreatedAt = item.CreatedAt.UTC()
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return items, nil
}

func (s *Store) GetItemByID(ctx context.Context, id string) (*domain.Item, error) {
	var item domain.Item
	var cost decimal.NullDecimal
	var qty sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, price, cost_price, quantity, created_at
		FROM items
		WHERE id = $1
	`, id).Scan(&item.ID, &item.Name, &item.Price, &cost, &qty, &item.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	item.CostPrice = scanCost(cost)
	item.Quantity = scanQuantity(qty)
	item.CreatedAt = item.CreatedAt.UTC()
	return &item, nil
}

func (s *Store) CreateItem(ctx context.Context, item domain.Item) (*domain.Item, error) {
	if item.ID == "" || item.Name == "" || !item.Price.IsPositive() {
		return nil, store.ErrInvalidTransaction
	}
	if item.Quantity != nil && *item.Quantity < 0 {
		return nil, store.ErrInvalidTransaction
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO items (id, name, price, cost_price, quantity, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, item.ID, item.Name, item.Price, costParam(item.CostPrice), quantityParam(item.Quantity), item.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	created := item
	return &created, nil
}

func (s *Store) UpdateItem(ctx context.Context, item domain.Item) (*domain.Item, error) {
	if item.ID == "" || item.Name == "" || !item.Price.IsPositive() {
		return nil, store.ErrInvalidTransaction
	}
	if item.Quantity != nil && *item.Quantity < 0 {
		return nil, store.ErrInvalidTransaction
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE items
		SET name = $2, price = $3, cost_price = $4, quantity = $5
		WHERE id = $1
	`, item.ID, item.Name, item.Price, costParam(item.CostPrice), quantityParam(item.Quantity))
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	updated := item
	return &updated, nil
}

func (s *Store) DeleteItem(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM items WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, []domain.InventoryUpdate, error) {
	if sale.ID == "" || sale.CashierID == "" || len(sale.CartDetails) == 0 {
		return nil, nil, store.ErrInvalidTransaction
	}

	cartJSON, err := json.Marshal(sale.CartDetails)
	if err != nil {
		return nil, nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sales (id, cashier_id, created_at, total_amount, payment_method, cart_details)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, sale.ID, sale.CashierID, sale.CreatedAt, sale.TotalAmount, sale.PaymentMethod, cartJSON)
	if err != nil {
		return nil, nil, err
	}

	// The row lock plus the re-read makes the decrement the arbiter under
	// concurrency: two competing checkouts serialize here and the loser sees
	// the already-reduced quantity.
	updates := make([]domain.InventoryUpdate, 0, len(sale.CartDetails))
	for _, line := range sale.CartDetails {
		var name string
		var qty sql.NullInt64
		err := tx.QueryRowContext(ctx, `
			SELECT name, quantity
			FROM items
			WHERE id = $1
			FOR UPDATE
		`, line.ID).Scan(&name, &qty)
		if errors.Is(err, sql.ErrNoRows) {
			// Item no longer in the catalog; the cart snapshot stands on its own.
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		if !qty.Valid {
			continue
		}

		available := int(qty.Int64)
		if available < line.Quantity {
			return nil, nil, &store.InsufficientStockError{
				ItemName:  name,
				Available: available,
				Requested: line.Quantity,
			}
		}
		newQty := available - line.Quantity
		if _, err := tx.ExecContext(ctx, `UPDATE items SET quantity = $2 WHERE id = $1`, line.ID, newQty); err != nil {
			return nil, nil, err
		}
		updates = append(updates, domain.InventoryUpdate{
			ItemName:    name,
			OldQuantity: available,
			NewQuantity: newQty,
		})
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}

	created := sale
	return &created, updates, nil
}

func (s *Store) ListSales(ctx context.Context, filter store.SaleFilter) ([]domain.Sale, error) {
	query := `
		SELECT id, cashier_id, created_at, total_amount, payment_method, cart_details
		FROM sales
		WHERE 1=1
	`
	args := make([]any, 0, 3)
	if filter.CashierID != "" {
		args = append(args, filter.CashierID)
		query += ` AND cashier_id = $1`
	}
	if filter.Start != nil {
		args = append(args, *filter.Start)
		query += ` AND created_at >= $` + strconv.Itoa(len(args))
	}
	if filter.End != nil {
		args = append(args, *filter.End)
		query += ` AND created_at < $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, 128)
	for rows.Next() {
		var sale domain.Sale
		var cartJSON []byte
		if err := rows.Scan(&sale.ID, &sale.CashierID, &sale.CreatedAt, &sale.TotalAmount, &sale.PaymentMethod, &cartJSON); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(cartJSON, &sale.CartDetails); err != nil {
			return nil, err
		}
		sale.CreatedAt = sale.CreatedAt.UTC()
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return sales, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if user.ID == "" || user.Email == "" {
		return store.ErrInvalidTransaction
	}

	var shadowed bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM deleted_users WHERE email = $1)
	`, user.Email).Scan(&shadowed)
	if err != nil {
		return err
	}
	if shadowed {
		return store.ErrConflict
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO profiles (id, email, username, password_hash, role, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, user.ID, user.Email, user.Username, user.PasswordHash, user.Role, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.UserAccount, error) {
	return s.getUser(ctx, `email = $1`, email)
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error) {
	return s.getUser(ctx, `username = $1`, username)
}

func (s *Store) getUser(ctx context.Context, where string, arg any) (*domain.UserAccount, error) {
	var user domain.UserAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, username, password_hash, role, created_at
		FROM profiles
		WHERE `+where, arg).Scan(&user.ID, &user.Email, &user.Username, &user.PasswordHash, &user.Role, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	user.CreatedAt = user.CreatedAt.UTC()
	return &user, nil
}

func (s *Store) GetUsersByIDs(ctx context.Context, ids []string) (map[string]domain.UserAccount, error) {
	result := make(map[string]domain.UserAccount, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, email, username, password_hash, role, created_at
		FROM profiles
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.ID, &user.Email, &user.Username, &user.PasswordHash, &user.Role, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		result[user.ID] = user
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, email, username, password_hash, role, created_at
		FROM profiles
		ORDER BY email
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 32)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.ID, &user.Email, &user.Username, &user.PasswordHash, &user.Role, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return users, nil
}

func (s *Store) ResolveAccount(ctx context.Context, email string) (domain.AccountState, error) {
	user, err := s.GetUserByEmail(ctx, email)
	if err == nil {
		return domain.AccountState{Active: user}, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return domain.AccountState{}, err
	}

	var shadow domain.DeletedUser
	err = s.db.QueryRowContext(ctx, `
		SELECT id, email, username, role, original_created_at, deleted_at, deleted_by, reason
		FROM deleted_users
		WHERE email = $1
	`, email).Scan(&shadow.ID, &shadow.Email, &shadow.Username, &shadow.Role,
		&shadow.OriginalCreatedAt, &shadow.DeletedAt, &shadow.DeletedBy, &shadow.Reason)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.AccountState{}, store.ErrNotFound
		}
		return domain.AccountState{}, err
	}
	shadow.OriginalCreatedAt = shadow.OriginalCreatedAt.UTC()
	shadow.DeletedAt = shadow.DeletedAt.UTC()
	return domain.AccountState{Deleted: &shadow}, nil
}

func (s *Store) DeleteUser(ctx context.Context, email string, deletedBy string, reason string, at time.Time) (*domain.DeletedUser, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var user domain.UserAccount
	err = tx.QueryRowContext(ctx, `
		SELECT id, email, username, role, created_at
		FROM profiles
		WHERE email = $1
		FOR UPDATE
	`, email).Scan(&user.ID, &user.Email, &user.Username, &user.Role, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	shadow := domain.DeletedUser{
		ID:                user.ID,
		Email:             user.Email,
		Username:          user.Username,
		Role:              user.Role,
		OriginalCreatedAt: user.CreatedAt.UTC(),
		DeletedAt:         at,
		DeletedBy:         deletedBy,
		Reason:            reason,
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO deleted_users (id, email, username, role, original_created_at, deleted_at, deleted_by, reason)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, shadow.ID, shadow.Email, shadow.Username, shadow.Role, shadow.OriginalCreatedAt, shadow.DeletedAt, shadow.DeletedBy, shadow.Reason)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM profiles WHERE email = $1`, email); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &shadow, nil
}

func (s *Store) RestoreUser(ctx context.Context, email string, passwordHash string) (*domain.UserAccount, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var shadow domain.DeletedUser
	err = tx.QueryRowContext(ctx, `
		SELECT id, email, username, role, original_created_at
		FROM deleted_users
		WHERE email = $1
		FOR UPDATE
	`, email).Scan(&shadow.ID, &shadow.Email, &shadow.Username, &shadow.Role, &shadow.OriginalCreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	user := domain.UserAccount{
		ID:           shadow.ID,
		Email:        shadow.Email,
		Username:     shadow.Username,
		PasswordHash: passwordHash,
		Role:         shadow.Role,
		CreatedAt:    shadow.OriginalCreatedAt.UTC(),
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO profiles (id, email, username, password_hash, role, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, user.ID, user.Email, user.Username, user.PasswordHash, user.Role, user.CreatedAt)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM deleted_users WHERE email = $1`, email); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Store) ListDeletedUsers(ctx context.Context) ([]domain.DeletedUser, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, email, username, role, original_created_at, deleted_at, deleted_by, reason
		FROM deleted_users
		ORDER BY deleted_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	shadows := make([]domain.DeletedUser, 0, 16)
	for rows.Next() {
		var shadow domain.DeletedUser
		if err := rows.Scan(&shadow.ID, &shadow.Email, &shadow.Username, &shadow.Role,
			&shadow.OriginalCreatedAt, &shadow.DeletedAt, &shadow.DeletedBy, &shadow.Reason); err != nil {
			return nil, err
		}
		shadow.OriginalCreatedAt = shadow.OriginalCreatedAt.UTC()
		shadow.DeletedAt = shadow.DeletedAt.UTC()
		shadows = append(shadows, shadow)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return shadows, nil
}

func (s *Store) GetDeletedUsersByIDs(ctx context.Context, ids []string) (map[string]domain.DeletedUser, error) {
	result := make(map[string]domain.DeletedUser, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, email, username, role, original_created_at, deleted_at, deleted_by, reason
		FROM deleted_users
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var shadow domain.DeletedUser
		if err := rows.Scan(&shadow.ID, &shadow.Email, &shadow.Username, &shadow.Role,
			&shadow.OriginalCreatedAt, &shadow.DeletedAt, &shadow.DeletedBy, &shadow.Reason); err != nil {
			return nil, err
		}
		shadow.OriginalCreatedAt = shadow.OriginalCreatedAt.UTC()
		shadow.DeletedAt = shadow.DeletedAt.UTC()
		result[shadow.ID] = shadow
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (s *Store) CreateNote(ctx context.Context, note domain.Note) (*domain.Note, error) {
	if note.ID == "" || note.CashierID == "" || note.Title == "" {
		return nil, store.ErrInvalidTransaction
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notes (id, cashier_id, title, content, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, note.ID, note.CashierID, note.Title, note.Content, note.CreatedAt, note.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	created := note
	return &created, nil
}

func (s *Store) GetNoteByID(ctx context.Context, id string) (*domain.Note, error) {
	var note domain.Note
	err := s.db.QueryRowContext(ctx, `
		SELECT id, cashier_id, title, content, created_at, updated_at
		FROM notes
		WHERE id = $1
	`, id).Scan(&note.ID, &note.CashierID, &note.Title, &note.Content, &note.CreatedAt, &note.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	note.CreatedAt = note.CreatedAt.UTC()
	note.UpdatedAt = note.UpdatedAt.UTC()
	return &note, nil
}

func (s *Store) ListNotes(ctx context.Context, cashierID string) ([]domain.Note, error) {
	query := `
		SELECT id, cashier_id, title, content, created_at, updated_at
		FROM notes
	`
	args := make([]any, 0, 1)
	if cashierID != "" {
		args = append(args, cashierID)
		query += ` WHERE cashier_id = $1`
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	notes := make([]domain.Note, 0, 32)
	for rows.Next() {
		var note domain.Note
		if err := rows.Scan(&note.ID, &note.CashierID, &note.Title, &note.Content, &note.CreatedAt, &note.UpdatedAt); err != nil {
			return nil, err
		}
		note.CreatedAt = note.CreatedAt.UTC()
		note.UpdatedAt = note.UpdatedAt.UTC()
		notes = append(notes, note)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return notes, nil
}

func (s *Store) UpdateNote(ctx context.Context, note domain.Note) (*domain.Note, error) {
	if note.ID == "" || note.Title == "" {
		return nil, store.ErrInvalidTransaction
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE notes
		SET title = $2, content = $3, updated_at = $4
		WHERE id = $1
	`, note.ID, note.Title, note.Content, note.UpdatedAt)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	updated := note
	return &updated, nil
}

func (s *Store) DeleteNote(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM notes WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

