package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"retailpos/backend/internal/cache"
	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/sheet"
	"retailpos/backend/internal/store"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo     store.Repository
	cache    cache.ReportCache
	sheet    *sheet.Client
	loc      *time.Location
	cacheTTL time.Duration
}

func New(repo store.Repository, reportCache cache.ReportCache, sheetClient *sheet.Client, reportLoc *time.Location, cacheTTL time.Duration) *Service {
	if reportCache == nil {
		reportCache = cache.NoopReportCache{}
	}
	if reportLoc == nil {
		reportLoc = time.Local
	}
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}

	return &Service{
		repo:     repo,
		cache:    reportCache,
		sheet:    sheetClient,
		loc:      reportLoc,
		cacheTTL: cacheTTL,
	}
}

func (s *Service) ListItems(ctx context.Context) ([]domain.Item, error) {
	return s.repo.ListItems(ctx)
}

func (s *Service) CreateItem(ctx context.Context, req domain.ItemCreateRequest) (domain.Item, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return domain.Item{}, fmt.Errorf("admin role required")
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Item{}, fmt.Errorf("%w: item name required", store.ErrInvalidTransaction)
	}
	if !req.Price.IsPositive() {
		return domain.Item{}, fmt.Errorf("%w: item price must be positive", store.ErrInvalidTransaction)
	}
	if req.Quantity != nil && *req.Quantity < 0 {
		return domain.Item{}, fmt.Errorf("%w: item quantity must not be negative", store.ErrInvalidTransaction)
	}
	if req.CostPrice != nil && req.CostPrice.IsNegative() {
		return domain.Item{}, fmt.Errorf("%w: item cost price must not be negative", store.ErrInvalidTransaction)
	}

	item := domain.Item{
		ID:        uuid.NewString(),
		Name:      req.Name,
		Price:     req.Price,
		CostPrice: req.CostPrice,
		Quantity:  req.Quantity,
		CreatedAt: time.Now().UTC(),
	}
	created, err := s.repo.CreateItem(ctx, item)
	if err != nil {
		return domain.Item{}, err
	}
	return *created, nil
}

func (s *Service) UpdateItem(ctx context.Context, id string, req domain.ItemUpdateRequest) (domain.Item, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return domain.Item{}, fmt.Errorf("admin role required")
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Item{}, fmt.Errorf("%w: item id required", store.ErrInvalidTransaction)
	}

	existing, err := s.repo.GetItemByID(ctx, id)
	if err != nil {
		return domain.Item{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Item{}, fmt.Errorf("%w: item name required", store.ErrInvalidTransaction)
		}
		updated.Name = name
	}
	if req.Price != nil {
		if !req.Price.IsPositive() {
			return domain.Item{}, fmt.Errorf("%w: item price must be positive", store.ErrInvalidTransaction)
		}
		updated.Price = *req.Price
	}
	if req.CostPrice != nil {
		if req.CostPrice.IsNegative() {
			return domain.Item{}, fmt.Errorf("%w: item cost price must not be negative", store.ErrInvalidTransaction)
		}
		cost := *req.CostPrice
		updated.CostPrice = &cost
	}
	if req.Quantity != nil {
		if *req.Quantity < 0 {
			return domain.Item{}, fmt.Errorf("%w: item quantity must not be negative", store.ErrInvalidTransaction)
		}
		qty := *req.Quantity
		updated.Quantity = &qty
	}
	if req.Unlimited != nil && *req.Unlimited {
		updated.Quantity = nil
	}

	saved, err := s.repo.UpdateItem(ctx, updated)
	if err != nil {
		return domain.Item{}, err
	}
	return *saved, nil
}

func (s *Service) DeleteItem(ctx context.Context, id string) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return fmt.Errorf("admin role required")
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: item id required", store.ErrInvalidTransaction)
	}
	return s.repo.DeleteItem(ctx, id)
}

// Checkout validates the cart, recomputes the total server-side and persists
// the sale with its stock decrements atomically. There is no idempotency
// key: replaying an identical request records a second sale and decrements
// stock again.
func (s *Service) Checkout(ctx context.Context, req domain.CheckoutRequest) (domain.CheckoutResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.ID == "" {
		return domain.CheckoutResponse{}, fmt.Errorf("%w: cashier identity required", store.ErrInvalidTransaction)
	}

	method := strings.TrimSpace(req.PaymentMethod)
	if method != domain.PaymentCash && method != domain.PaymentTransfer {
		return domain.CheckoutResponse{}, fmt.Errorf("%w: payment method must be Cash or Transfer", store.ErrInvalidTransaction)
	}
	if len(req.CartDetails) == 0 {
		return domain.CheckoutResponse{}, fmt.Errorf("%w: cart must not be empty", store.ErrInvalidTransaction)
	}

	lines := make([]domain.CartItem, 0, len(req.CartDetails))
	total := decimal.Zero
	for _, line := range req.CartDetails {
		line.ID = strings.TrimSpace(line.ID)
		line.Name = strings.TrimSpace(line.Name)
		if line.ID == "" || line.Name == "" {
			return domain.CheckoutResponse{}, fmt.Errorf("%w: cart line id and name required", store.ErrInvalidTransaction)
		}
		if !line.Price.IsPositive() {
			return domain.CheckoutResponse{}, fmt.Errorf("%w: cart line price must be positive", store.ErrInvalidTransaction)
		}
		if line.Quantity < 1 {
			return domain.CheckoutResponse{}, fmt.Errorf("%w: cart line quantity must be at least 1", store.ErrInvalidTransaction)
		}
		total = total.Add(line.Price.Mul(decimal.NewFromInt(int64(line.Quantity))))
		lines = append(lines, line)
	}

	// The client-sent total is never trusted; it must match the recomputed
	// sum of the cart lines exactly.
	if !total.Equal(req.TotalAmount) {
		return domain.CheckoutResponse{}, fmt.Errorf("%w: total_amount %s does not match cart total %s",
			store.ErrInvalidTransaction, req.TotalAmount.String(), total.String())
	}

	sale := domain.Sale{
		ID:            uuid.NewString(),
		CashierID:     actor.ID,
		CreatedAt:     time.Now().UTC(),
		TotalAmount:   total,
		PaymentMethod: method,
		CartDetails:   lines,
	}

	created, updates, err := s.repo.CreateSale(ctx, sale)
	if err != nil {
		return domain.CheckoutResponse{}, err
	}
	if updates == nil {
		updates = []domain.InventoryUpdate{}
	}

	s.afterCheckout(*created)

	return domain.CheckoutResponse{
		Success:          true,
		SaleID:           created.ID,
		InventoryUpdates: updates,
	}, nil
}

// afterCheckout runs the non-transactional side effects: report cache
// invalidation and the spreadsheet mirror. Failures are logged, never
// surfaced to the cashier.
func (s *Service) afterCheckout(sale domain.Sale) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if err := s.cache.Invalidate(ctx); err != nil {
			log.Warn().Err(err).Msg("report cache invalidation failed")
		}
		if s.sheet == nil {
			return
		}
		email := s.cashierEmail(ctx, sale.CashierID)
		if err := s.sheet.AppendSale(ctx, sale, email); err != nil {
			log.Warn().Err(err).Str("sale_id", sale.ID).Msg("spreadsheet mirror failed")
		}
	}()
}

func (s *Service) cashierEmail(ctx context.Context, cashierID string) string {
	users, err := s.repo.GetUsersByIDs(ctx, []string{cashierID})
	if err == nil {
		if user, ok := users[cashierID]; ok {
			return user.Email
		}
	}
	return "Unknown"
}

func (s *Service) CreateAccount(ctx context.Context, req domain.AccountCreateRequest) (domain.UserAccount, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return domain.UserAccount{}, fmt.Errorf("admin role required")
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		return domain.UserAccount{}, fmt.Errorf("%w: valid email required", store.ErrInvalidTransaction)
	}
	if len(strings.TrimSpace(req.Password)) < 6 {
		return domain.UserAccount{}, fmt.Errorf("%w: password must be at least 6 characters", store.ErrInvalidTransaction)
	}
	role := strings.TrimSpace(req.Role)
	if role == "" {
		role = domain.RoleCashier
	}
	if role != domain.RoleAdmin && role != domain.RoleCashier {
		return domain.UserAccount{}, fmt.Errorf("%w: role must be admin or cashier", store.ErrInvalidTransaction)
	}

	hash, err := hashPassword(req.Password)
	if err != nil {
		return domain.UserAccount{}, err
	}

	user := domain.UserAccount{
		ID:           uuid.NewString(),
		Email:        email,
		Username:     email,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		return domain.UserAccount{}, err
	}
	return user, nil
}

func (s *Service) DeleteAccount(ctx context.Context, req domain.AccountDeleteRequest) (domain.DeletedUser, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return domain.DeletedUser{}, fmt.Errorf("admin role required")
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" {
		return domain.DeletedUser{}, fmt.Errorf("%w: email required", store.ErrInvalidTransaction)
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = "No reason provided"
	}

	state, err := s.repo.ResolveAccount(ctx, email)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return domain.DeletedUser{}, err
	}
	if err != nil || state.Active == nil {
		return domain.DeletedUser{}, fmt.Errorf("%w: delete target not found", store.ErrNotFound)
	}

	shadow, err := s.repo.DeleteUser(ctx, email, actor.Email, reason, time.Now().UTC())
	if err != nil {
		return domain.DeletedUser{}, err
	}
	return *shadow, nil
}

func (s *Service) RestoreAccount(ctx context.Context, req domain.AccountRestoreRequest) (domain.UserAccount, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return domain.UserAccount{}, fmt.Errorf("admin role required")
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" {
		return domain.UserAccount{}, fmt.Errorf("%w: email required", store.ErrInvalidTransaction)
	}
	if len(strings.TrimSpace(req.Password)) < 6 {
		return domain.UserAccount{}, fmt.Errorf("%w: password must be at least 6 characters", store.ErrInvalidTransaction)
	}

	state, err := s.repo.ResolveAccount(ctx, email)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return domain.UserAccount{}, err
	}
	if err != nil || state.Deleted == nil {
		return domain.UserAccount{}, fmt.Errorf("%w: restore target not found", store.ErrNotFound)
	}

	hash, err := hashPassword(req.Password)
	if err != nil {
		return domain.UserAccount{}, err
	}

	restored, err := s.repo.RestoreUser(ctx, email, hash)
	if err != nil {
		return domain.UserAccount{}, err
	}
	return *restored, nil
}

func (s *Service) ListDeletedAccounts(ctx context.Context) ([]domain.DeletedUser, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return nil, fmt.Errorf("admin role required")
	}
	return s.repo.ListDeletedUsers(ctx)
}

// EmailsByIDs resolves cashier ids to display emails: live accounts first,
// then the deleted shadow with a " [DELETED]" suffix. Unknown ids are
// omitted.
func (s *Service) EmailsByIDs(ctx context.Context, ids []string) (map[string]string, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return nil, fmt.Errorf("admin role required")
	}

	unique := uniqueStrings(ids)
	result := make(map[string]string, len(unique))

	users, err := s.repo.GetUsersByIDs(ctx, unique)
	if err != nil {
		return nil, err
	}
	missing := make([]string, 0, len(unique))
	for _, id := range unique {
		if user, found := users[id]; found {
			result[id] = user.Email
		} else {
			missing = append(missing, id)
		}
	}

	if len(missing) > 0 {
		shadows, err := s.repo.GetDeletedUsersByIDs(ctx, missing)
		if err != nil {
			return nil, err
		}
		for _, id := range missing {
			if shadow, found := shadows[id]; found {
				result[id] = shadow.Email + " [DELETED]"
			}
		}
	}

	return result, nil
}

// EmailByUsername resolves a username to its email for the login flow. It
// only consults active accounts: a deleted cashier cannot log in.
func (s *Service) EmailByUsername(ctx context.Context, username string) (string, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" {
		return "", fmt.Errorf("%w: username required", store.ErrInvalidTransaction)
	}
	user, err := s.repo.GetUserByUsername(ctx, username)
	if err != nil {
		return "", err
	}
	return user.Email, nil
}

func (s *Service) CreateNote(ctx context.Context, req domain.NoteCreateRequest) (domain.Note, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.ID == "" {
		return domain.Note{}, fmt.Errorf("%w: cashier identity required", store.ErrInvalidTransaction)
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		return domain.Note{}, fmt.Errorf("%w: note title required", store.ErrInvalidTransaction)
	}

	now := time.Now().UTC()
	note := domain.Note{
		ID:        uuid.NewString(),
		CashierID: actor.ID,
		Title:     title,
		Content:   req.Content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	created, err := s.repo.CreateNote(ctx, note)
	if err != nil {
		return domain.Note{}, err
	}
	return *created, nil
}

// ListNotes returns the caller's own notes; admins see everyone's with
// cashier emails resolved.
func (s *Service) ListNotes(ctx context.Context) ([]domain.NoteView, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.ID == "" {
		return nil, fmt.Errorf("%w: cashier identity required", store.ErrInvalidTransaction)
	}

	cashierID := actor.ID
	if actor.Role == domain.RoleAdmin {
		cashierID = ""
	}

	notes, err := s.repo.ListNotes(ctx, cashierID)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(notes))
	for _, note := range notes {
		ids = append(ids, note.CashierID)
	}
	users, err := s.repo.GetUsersByIDs(ctx, uniqueStrings(ids))
	if err != nil {
		return nil, err
	}

	views := make([]domain.NoteView, 0, len(notes))
	for _, note := range notes {
		email := "Unknown"
		if user, found := users[note.CashierID]; found {
			email = user.Email
		}
		views = append(views, domain.NoteView{Note: note, CashierEmail: email})
	}
	return views, nil
}

func (s *Service) UpdateNote(ctx context.Context, id string, req domain.NoteUpdateRequest) (domain.Note, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.ID == "" {
		return domain.Note{}, fmt.Errorf("%w: cashier identity required", store.ErrInvalidTransaction)
	}

	existing, err := s.repo.GetNoteByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Note{}, err
	}
	if existing.CashierID != actor.ID && actor.Role != domain.RoleAdmin {
		return domain.Note{}, fmt.Errorf("note owner or admin role required")
	}

	updated := *existing
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			return domain.Note{}, fmt.Errorf("%w: note title required", store.ErrInvalidTransaction)
		}
		updated.Title = title
	}
	if req.Content != nil {
		updated.Content = *req.Content
	}
	updated.UpdatedAt = time.Now().UTC()

	saved, err := s.repo.UpdateNote(ctx, updated)
	if err != nil {
		return domain.Note{}, err
	}
	return *saved, nil
}

func (s *Service) DeleteNote(ctx context.Context, id string) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.ID == "" {
		return fmt.Errorf("%w: cashier identity required", store.ErrInvalidTransaction)
	}

	existing, err := s.repo.GetNoteByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return err
	}
	if existing.CashierID != actor.ID && actor.Role != domain.RoleAdmin {
		return fmt.Errorf("note owner or admin role required")
	}
	return s.repo.DeleteNote(ctx, existing.ID)
}

func (s *Service) InitSheetHeaders(ctx context.Context) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return fmt.Errorf("admin role required")
	}
	if s.sheet == nil {
		return fmt.Errorf("%w: spreadsheet endpoint not configured", store.ErrInvalidTransaction)
	}
	return s.sheet.InitHeaders(ctx)
}

func (s *Service) SheetStatus(ctx context.Context) domain.SheetStatus {
	if s.sheet == nil {
		return domain.SheetStatus{Configured: false}
	}
	status := domain.SheetStatus{Configured: true}
	if err := s.sheet.TestConnection(ctx); err != nil {
		status.Error = err.Error()
		return status
	}
	status.Reachable = true
	return status
}

func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	unique := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		unique = append(unique, v)
	}
	return unique
}
