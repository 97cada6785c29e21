package services

import (
	"context"
	"errors"
	"maps"
	"sort"
	"strings"
	"time"

	domain "github.com/vnshop/api/internal/domain"
	"github.com/vnshop/api/internal/repositories"
)

type repoErr struct {
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e repoErr) Error() string {
	switch {
	case e.notFound:
		return "repo: not found"
	case e.conflict:
		return "repo: conflict"
	default:
		return "repo: unavailable"
	}
}

func (e repoErr) IsNotFound() bool    { return e.notFound }
func (e repoErr) IsConflict() bool    { return e.conflict }
func (e repoErr) IsUnavailable() bool { return e.unavailable }

var (
	errRepoNotFound = repoErr{notFound: true}
	errRepoConflict = repoErr{conflict: true}
)

var _ repositories.RepositoryError = repoErr{}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func sequenceIDs(ids ...string) func() string {
	i := 0
	return func() string {
		if i >= len(ids) {
			return "ID-EXTRA"
		}
		id := ids[i]
		i++
		return id
	}
}

// memInventory is an in-memory unit of work. Writes are applied to copies and only committed when
// fn succeeds, so a failed transaction leaves no trace.
type memInventory struct {
	orders   map[string]domain.Order
	products map[string]domain.Product
	variants map[string]domain.Variant
	commits  int
	writes   int
}

func newMemInventory() *memInventory {
	return &memInventory{
		orders:   map[string]domain.Order{},
		products: map[string]domain.Product{},
		variants: map[string]domain.Variant{},
	}
}

func (m *memInventory) RunInventoryTx(ctx context.Context, fn func(context.Context, repositories.InventoryTx) error) error {
	tx := &memTx{
		orders:   maps.Clone(m.orders),
		products: maps.Clone(m.products),
		variants: maps.Clone(m.variants),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	m.orders, m.products, m.variants = tx.orders, tx.products, tx.variants
	m.commits++
	m.writes += tx.writes
	return nil
}

type memTx struct {
	orders   map[string]domain.Order
	products map[string]domain.Product
	variants map[string]domain.Variant
	writes   int
}

func (t *memTx) Order(_ context.Context, id string) (domain.Order, error) {
	order, ok := t.orders[id]
	if !ok {
		return domain.Order{}, errRepoNotFound
	}
	return order, nil
}

func (t *memTx) Products(_ context.Context, ids []string) (map[string]domain.Product, error) {
	out := map[string]domain.Product{}
	for _, id := range ids {
		if p, ok := t.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (t *memTx) Variants(_ context.Context, ids []string) (map[string]domain.Variant, error) {
	out := map[string]domain.Variant{}
	for _, id := range ids {
		if v, ok := t.variants[id]; ok {
			out[id] = v
		}
	}
	return out, nil
}

func (t *memTx) InsertOrder(_ context.Context, order domain.Order) error {
	if _, exists := t.orders[order.ID]; exists {
		return errRepoConflict
	}
	t.orders[order.ID] = order
	t.writes++
	return nil
}

func (t *memTx) UpdateOrderStatus(_ context.Context, id string, status domain.OrderStatus, now time.Time) error {
	order, ok := t.orders[id]
	if !ok {
		return errRepoNotFound
	}
	order.Status = status
	order.UpdatedAt = now
	t.orders[id] = order
	t.writes++
	return nil
}

func (t *memTx) IncrementVariantStock(_ context.Context, id string, delta int, now time.Time) error {
	v, ok := t.variants[id]
	if !ok {
		return errRepoNotFound
	}
	v.Stock += delta
	v.UpdatedAt = now
	t.variants[id] = v
	t.writes++
	return nil
}

func (t *memTx) IncrementProductSold(_ context.Context, id string, delta int, now time.Time) error {
	p, ok := t.products[id]
	if !ok {
		return errRepoNotFound
	}
	p.Sold += int64(delta)
	p.UpdatedAt = now
	t.products[id] = p
	t.writes++
	return nil
}

func (t *memTx) SetProductSold(_ context.Context, id string, sold int64, now time.Time) error {
	p, ok := t.products[id]
	if !ok {
		return errRepoNotFound
	}
	p.Sold = sold
	p.UpdatedAt = now
	t.products[id] = p
	t.writes++
	return nil
}

type stubUserRepo struct {
	users    map[string]domain.User
	createFn func(context.Context, domain.User) error
	listFn   func(context.Context, repositories.UserListFilter) (domain.PageResult[domain.User], error)
}

func newStubUserRepo(users ...domain.User) *stubUserRepo {
	repo := &stubUserRepo{users: map[string]domain.User{}}
	for _, u := range users {
		repo.users[u.ID] = u
	}
	return repo
}

func (s *stubUserRepo) Create(ctx context.Context, user domain.User) error {
	if s.createFn != nil {
		return s.createFn(ctx, user)
	}
	if _, ok := s.users[user.ID]; ok {
		return errRepoConflict
	}
	s.users[user.ID] = user
	return nil
}

func (s *stubUserRepo) Save(_ context.Context, user domain.User) error {
	if _, ok := s.users[user.ID]; !ok {
		return errRepoNotFound
	}
	s.users[user.ID] = user
	return nil
}

func (s *stubUserRepo) Get(_ context.Context, uid string) (domain.User, error) {
	user, ok := s.users[uid]
	if !ok {
		return domain.User{}, errRepoNotFound
	}
	return user, nil
}

func (s *stubUserRepo) GetMany(_ context.Context, uids []string) (map[string]domain.User, error) {
	out := map[string]domain.User{}
	for _, uid := range uids {
		if u, ok := s.users[uid]; ok {
			out[uid] = u
		}
	}
	return out, nil
}

func (s *stubUserRepo) FindByEmail(_ context.Context, email string) (domain.User, error) {
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return domain.User{}, errRepoNotFound
}

func (s *stubUserRepo) Delete(_ context.Context, uid string) error {
	if _, ok := s.users[uid]; !ok {
		return errRepoNotFound
	}
	delete(s.users, uid)
	return nil
}

func (s *stubUserRepo) List(ctx context.Context, filter repositories.UserListFilter) (domain.PageResult[domain.User], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.PageResult[domain.User]{}, nil
}

func (s *stubUserRepo) Count(context.Context) (int, error) { return len(s.users), nil }

type stubOrderRepo struct {
	orders         map[string]domain.Order
	listFn         func(context.Context, repositories.OrderListFilter) (domain.PageResult[domain.Order], error)
	betweenFn      func(context.Context, time.Time, time.Time, []domain.OrderStatus) ([]domain.Order, error)
	sumFn          func(context.Context, []domain.OrderStatus) (int64, error)
	statusUpdates  []domain.OrderStatus
	addressUpdates int
	// statusErrs fail the next UpdateStatus calls, one error per call.
	statusErrs []error
}

func newStubOrderRepo(orders ...domain.Order) *stubOrderRepo {
	repo := &stubOrderRepo{orders: map[string]domain.Order{}}
	for _, o := range orders {
		repo.orders[o.ID] = o
	}
	return repo
}

func (s *stubOrderRepo) Get(_ context.Context, id string) (domain.Order, error) {
	order, ok := s.orders[id]
	if !ok {
		return domain.Order{}, errRepoNotFound
	}
	return order, nil
}

func (s *stubOrderRepo) Save(_ context.Context, order domain.Order) error {
	if _, ok := s.orders[order.ID]; !ok {
		return errRepoNotFound
	}
	s.orders[order.ID] = order
	return nil
}

func (s *stubOrderRepo) UpdateStatus(_ context.Context, id string, status domain.OrderStatus, now time.Time) error {
	if len(s.statusErrs) > 0 {
		err := s.statusErrs[0]
		s.statusErrs = s.statusErrs[1:]
		return err
	}
	order, ok := s.orders[id]
	if !ok {
		return errRepoNotFound
	}
	order.Status = status
	order.UpdatedAt = now
	s.orders[id] = order
	s.statusUpdates = append(s.statusUpdates, status)
	return nil
}

func (s *stubOrderRepo) UpdateShippingAddress(_ context.Context, id string, address domain.ShippingAddress, now time.Time) error {
	order, ok := s.orders[id]
	if !ok {
		return errRepoNotFound
	}
	order.ShippingAddress = address
	order.UpdatedAt = now
	s.orders[id] = order
	s.addressUpdates++
	return nil
}

func (s *stubOrderRepo) Delete(_ context.Context, id string) error {
	if _, ok := s.orders[id]; !ok {
		return errRepoNotFound
	}
	delete(s.orders, id)
	return nil
}

func (s *stubOrderRepo) List(ctx context.Context, filter repositories.OrderListFilter) (domain.PageResult[domain.Order], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.PageResult[domain.Order]{}, nil
}

func (s *stubOrderRepo) ListCreatedBetween(ctx context.Context, from, to time.Time, statuses []domain.OrderStatus) ([]domain.Order, error) {
	if s.betweenFn != nil {
		return s.betweenFn(ctx, from, to, statuses)
	}
	return nil, nil
}

func (s *stubOrderRepo) SumTotal(ctx context.Context, statuses []domain.OrderStatus) (int64, error) {
	if s.sumFn != nil {
		return s.sumFn(ctx, statuses)
	}
	return 0, nil
}

func (s *stubOrderRepo) Count(context.Context) (int, error) { return len(s.orders), nil }

type captureNotifications struct {
	sent []Notification
	err  error
}

func (c *captureNotifications) Notify(_ context.Context, userID, title, message string) (Notification, error) {
	if c.err != nil {
		return Notification{}, c.err
	}
	n := Notification{UserID: userID, Title: title, Message: message}
	c.sent = append(c.sent, n)
	return n, nil
}

func (c *captureNotifications) List(context.Context, string) ([]Notification, error) {
	return c.sent, nil
}

func (c *captureNotifications) CountUnread(context.Context, string) (int, error) {
	return len(c.sent), nil
}

func (c *captureNotifications) MarkRead(context.Context, string, string) error { return nil }

func (c *captureNotifications) Delete(context.Context, string, string) error { return nil }

type captureOrderEvents struct {
	events []OrderEvent
	err    error
}

func (c *captureOrderEvents) PublishOrderEvent(_ context.Context, event OrderEvent) error {
	c.events = append(c.events, event)
	return c.err
}

var errBoom = errors.New("boom")

type stubBrandRepo struct {
	brands map[string]domain.Brand
}

func newStubBrandRepo(brands ...domain.Brand) *stubBrandRepo {
	repo := &stubBrandRepo{brands: map[string]domain.Brand{}}
	for _, b := range brands {
		repo.brands[b.ID] = b
	}
	return repo
}

func (s *stubBrandRepo) Insert(_ context.Context, brand domain.Brand) error {
	s.brands[brand.ID] = brand
	return nil
}

func (s *stubBrandRepo) Save(_ context.Context, brand domain.Brand) error {
	if _, ok := s.brands[brand.ID]; !ok {
		return errRepoNotFound
	}
	s.brands[brand.ID] = brand
	return nil
}

func (s *stubBrandRepo) Get(_ context.Context, id string) (domain.Brand, error) {
	b, ok := s.brands[id]
	if !ok {
		return domain.Brand{}, errRepoNotFound
	}
	return b, nil
}

func (s *stubBrandRepo) FindBySlug(_ context.Context, slug string) (domain.Brand, error) {
	for _, b := range s.brands {
		if b.Slug == slug {
			return b, nil
		}
	}
	return domain.Brand{}, errRepoNotFound
}

func (s *stubBrandRepo) FindByName(_ context.Context, name string) (domain.Brand, error) {
	for _, b := range s.brands {
		if strings.EqualFold(b.Name, name) {
			return b, nil
		}
	}
	return domain.Brand{}, errRepoNotFound
}

func (s *stubBrandRepo) Delete(_ context.Context, id string) error {
	if _, ok := s.brands[id]; !ok {
		return errRepoNotFound
	}
	delete(s.brands, id)
	return nil
}

func (s *stubBrandRepo) ListAll(context.Context) ([]domain.Brand, error) {
	out := make([]domain.Brand, 0, len(s.brands))
	for _, b := range s.brands {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *stubBrandRepo) List(ctx context.Context, _ repositories.BrandListFilter) (domain.PageResult[domain.Brand], error) {
	items, _ := s.ListAll(ctx)
	return domain.PageResult[domain.Brand]{Items: items, Total: len(items)}, nil
}

func (s *stubBrandRepo) Count(context.Context) (int, error) { return len(s.brands), nil }

type stubProductRepo struct {
	products  map[string]domain.Product
	feeds     map[repositories.ProductFeed][]domain.Product
	lastList  repositories.ProductListFilter
	lastLimit int
	viewErr   error
}

func newStubProductRepo(products ...domain.Product) *stubProductRepo {
	repo := &stubProductRepo{products: map[string]domain.Product{}, feeds: map[repositories.ProductFeed][]domain.Product{}}
	for _, p := range products {
		repo.products[p.ID] = p
	}
	return repo
}

func (s *stubProductRepo) Insert(_ context.Context, product domain.Product) error {
	s.products[product.ID] = product
	return nil
}

func (s *stubProductRepo) Save(_ context.Context, product domain.Product) error {
	if _, ok := s.products[product.ID]; !ok {
		return errRepoNotFound
	}
	s.products[product.ID] = product
	return nil
}

func (s *stubProductRepo) Get(_ context.Context, id string) (domain.Product, error) {
	p, ok := s.products[id]
	if !ok {
		return domain.Product{}, errRepoNotFound
	}
	return p, nil
}

func (s *stubProductRepo) GetMany(_ context.Context, ids []string) (map[string]domain.Product, error) {
	out := map[string]domain.Product{}
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (s *stubProductRepo) Delete(_ context.Context, id string) error {
	if _, ok := s.products[id]; !ok {
		return errRepoNotFound
	}
	delete(s.products, id)
	return nil
}

func (s *stubProductRepo) List(_ context.Context, filter repositories.ProductListFilter) (domain.PageResult[domain.Product], error) {
	s.lastList = filter
	var out []domain.Product
	for _, p := range s.products {
		if filter.BrandID != "" && p.BrandID != filter.BrandID {
			continue
		}
		if filter.Query != "" && !strings.HasPrefix(strings.ToLower(p.Name), strings.ToLower(filter.Query)) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return domain.PageResult[domain.Product]{Items: out, Total: len(out)}, nil
}

func (s *stubProductRepo) Feed(_ context.Context, feed repositories.ProductFeed, limit int) ([]domain.Product, error) {
	s.lastLimit = limit
	items := s.feeds[feed]
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *stubProductRepo) IncrementViews(_ context.Context, id string) error {
	if s.viewErr != nil {
		return s.viewErr
	}
	p, ok := s.products[id]
	if !ok {
		return errRepoNotFound
	}
	p.Views++
	s.products[id] = p
	return nil
}

func (s *stubProductRepo) Count(context.Context) (int, error) { return len(s.products), nil }

type stubVariantRepo struct {
	variants map[string]domain.Variant
}

func newStubVariantRepo(variants ...domain.Variant) *stubVariantRepo {
	repo := &stubVariantRepo{variants: map[string]domain.Variant{}}
	for _, v := range variants {
		repo.variants[v.ID] = v
	}
	return repo
}

func (s *stubVariantRepo) Insert(_ context.Context, variant domain.Variant) error {
	s.variants[variant.ID] = variant
	return nil
}

func (s *stubVariantRepo) Save(_ context.Context, variant domain.Variant) error {
	if _, ok := s.variants[variant.ID]; !ok {
		return errRepoNotFound
	}
	s.variants[variant.ID] = variant
	return nil
}

func (s *stubVariantRepo) Get(_ context.Context, id string) (domain.Variant, error) {
	v, ok := s.variants[id]
	if !ok {
		return domain.Variant{}, errRepoNotFound
	}
	return v, nil
}

func (s *stubVariantRepo) FindByAttributes(_ context.Context, productID, color, size string) (domain.Variant, error) {
	for _, v := range s.variants {
		if v.ProductID == productID && v.Color == color && v.Size == size {
			return v, nil
		}
	}
	return domain.Variant{}, errRepoNotFound
}

func (s *stubVariantRepo) ListByProduct(_ context.Context, productID string) ([]domain.Variant, error) {
	var out []domain.Variant
	for _, v := range s.variants {
		if v.ProductID == productID {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *stubVariantRepo) Delete(_ context.Context, id string) error {
	if _, ok := s.variants[id]; !ok {
		return errRepoNotFound
	}
	delete(s.variants, id)
	return nil
}
