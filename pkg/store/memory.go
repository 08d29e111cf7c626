package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/voxlane/backoffice/pkg/models"
)

// MemoryStore is an in-memory implementation of the data store.
// Values are copied on the way in and out so callers never share state with the store.
type MemoryStore struct {
	mu sync.RWMutex

	customers    map[string]*models.Customer
	transactions []*models.Transaction
	users        map[string]*models.User
	sessions     map[string]*models.Session
	carriers     map[string]*models.Carrier
	rateCards    map[string]*models.RateCard
	rates        map[string][]models.Rate
	routes       map[string]*models.Route
	dids         map[string]*models.DID
	extensions   map[string]*models.Extension
	ivrMenus     map[string]*models.IVRMenu
	voiceAgents  map[string]*models.VoiceAgent
	cdrs         []*models.CDR
	kyc          map[string]*models.KYCSubmission
	audit        []*models.AuditLog
	trash        map[string]*models.TrashItem
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		customers:   make(map[string]*models.Customer),
		users:       make(map[string]*models.User),
		sessions:    make(map[string]*models.Session),
		carriers:    make(map[string]*models.Carrier),
		rateCards:   make(map[string]*models.RateCard),
		rates:       make(map[string][]models.Rate),
		routes:      make(map[string]*models.Route),
		dids:        make(map[string]*models.DID),
		extensions:  make(map[string]*models.Extension),
		ivrMenus:    make(map[string]*models.IVRMenu),
		voiceAgents: make(map[string]*models.VoiceAgent),
		kyc:         make(map[string]*models.KYCSubmission),
		trash:       make(map[string]*models.TrashItem),
	}
}

func paginate[T any](items []T, p models.Page) ([]T, int) {
	p = p.Normalize()
	total := len(items)
	if p.Offset >= total {
		return []T{}, total
	}
	end := p.Offset + p.Limit
	if end > total {
		end = total
	}
	return items[p.Offset:end], total
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

// Customer operations

func copyCustomer(c *models.Customer) *models.Customer {
	cp := *c
	if c.SyncedAt != nil {
		t := *c.SyncedAt
		cp.SyncedAt = &t
	}
	return &cp
}

// CreateCustomer adds a customer. ID and account number must be unique.
func (s *MemoryStore) CreateCustomer(_ context.Context, c *models.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.customers[c.ID]; ok {
		return ErrConflict
	}
	for _, existing := range s.customers {
		if existing.AccountNumber == c.AccountNumber || strings.EqualFold(existing.Email, c.Email) {
			return ErrConflict
		}
	}
	s.customers[c.ID] = copyCustomer(c)
	return nil
}

// GetCustomer retrieves a customer by ID
func (s *MemoryStore) GetCustomer(_ context.Context, id string) (*models.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.customers[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyCustomer(c), nil
}

// GetCustomerByAccountNumber retrieves a customer by account number
func (s *MemoryStore) GetCustomerByAccountNumber(_ context.Context, accountNumber string) (*models.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.customers {
		if c.AccountNumber == accountNumber {
			return copyCustomer(c), nil
		}
	}
	return nil, ErrNotFound
}

// ListCustomers returns customers newest first
func (s *MemoryStore) ListCustomers(_ context.Context, f models.CustomerFilter) ([]*models.Customer, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Customer
	for _, c := range s.customers {
		if f.Status != "" && c.Status != f.Status {
			continue
		}
		if f.Search != "" && !containsFold(c.Name, f.Search) && !containsFold(c.Email, f.Search) &&
			!containsFold(c.AccountNumber, f.Search) && !containsFold(c.Company, f.Search) {
			continue
		}
		out = append(out, copyCustomer(c))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	page, total := paginate(out, f.Page)
	return page, total, nil
}

// UpdateCustomer replaces a customer. The balance is owned by ApplyTransaction.
func (s *MemoryStore) UpdateCustomer(_ context.Context, c *models.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.customers[c.ID]
	if !ok {
		return ErrNotFound
	}
	for _, existing := range s.customers {
		if existing.ID != c.ID && strings.EqualFold(existing.Email, c.Email) {
			return ErrConflict
		}
	}
	cp := copyCustomer(c)
	cp.Balance = current.Balance
	s.customers[c.ID] = cp
	return nil
}

// DeleteCustomer removes a customer and its sessions.
// A customer that still holds numbers cannot be deleted.
func (s *MemoryStore) DeleteCustomer(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.customers[id]; !ok {
		return ErrNotFound
	}
	for _, d := range s.dids {
		if d.CustomerID == id {
			return ErrConflict
		}
	}
	delete(s.customers, id)
	for hash, sess := range s.sessions {
		if sess.CustomerID == id {
			delete(s.sessions, hash)
		}
	}
	return nil
}

// ApplyTransaction changes the balance and appends the ledger row atomically
func (s *MemoryStore) ApplyTransaction(_ context.Context, txn *models.Transaction) (*models.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.customers[txn.CustomerID]
	if !ok {
		return nil, ErrNotFound
	}

	next := c.Balance + txn.Amount
	if txn.IsDebit() && next < -c.CreditLimit {
		return nil, ErrInsufficientFunds
	}

	c.Balance = next
	c.UpdatedAt = txn.CreatedAt
	txn.BalanceAfter = next

	cp := *txn
	s.transactions = append(s.transactions, &cp)
	return copyCustomer(c), nil
}

// ListTransactions returns the ledger newest first
func (s *MemoryStore) ListTransactions(_ context.Context, customerID string, page models.Page) ([]*models.Transaction, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Transaction
	for i := len(s.transactions) - 1; i >= 0; i-- {
		t := s.transactions[i]
		if t.CustomerID == customerID {
			cp := *t
			out = append(out, &cp)
		}
	}
	items, total := paginate(out, page)
	return items, total, nil
}

// User and session operations

// CreateUser adds a user. Emails are unique across the platform.
func (s *MemoryStore) CreateUser(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[u.ID]; ok {
		return ErrConflict
	}
	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return ErrConflict
		}
	}
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

// GetUser retrieves a user by ID
func (s *MemoryStore) GetUser(_ context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

// GetUserByEmail retrieves a user by email, case-insensitively
func (s *MemoryStore) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// ListUsers returns the users of a customer, or staff users when customerID is empty
func (s *MemoryStore) ListUsers(_ context.Context, customerID string) ([]*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []*models.User{}
	for _, u := range s.users {
		if u.CustomerID == customerID {
			cp := *u
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

// UpdateUser replaces a user
func (s *MemoryStore) UpdateUser(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[u.ID]; !ok {
		return ErrNotFound
	}
	for _, existing := range s.users {
		if existing.ID != u.ID && strings.EqualFold(existing.Email, u.Email) {
			return ErrConflict
		}
	}
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

// DeleteUser removes a user and its sessions
func (s *MemoryStore) DeleteUser(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[id]; !ok {
		return ErrNotFound
	}
	delete(s.users, id)
	for hash, sess := range s.sessions {
		if sess.UserID == id {
			delete(s.sessions, hash)
		}
	}
	return nil
}

// CreateSession stores a session keyed by its token hash
func (s *MemoryStore) CreateSession(_ context.Context, sess *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sess.TokenHash]; ok {
		return ErrConflict
	}
	cp := *sess
	s.sessions[sess.TokenHash] = &cp
	return nil
}

// GetSession retrieves a session by token hash
func (s *MemoryStore) GetSession(_ context.Context, tokenHash string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[tokenHash]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *sess
	return &cp, nil
}

// DeleteSession removes a session
func (s *MemoryStore) DeleteSession(_ context.Context, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[tokenHash]; !ok {
		return ErrNotFound
	}
	delete(s.sessions, tokenHash)
	return nil
}

// DeleteExpiredSessions removes sessions that expired at or before now
func (s *MemoryStore) DeleteExpiredSessions(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for hash, sess := range s.sessions {
		if sess.Expired(now) {
			delete(s.sessions, hash)
			n++
		}
	}
	return n, nil
}

// Carrier operations

func copyCarrier(c *models.Carrier) *models.Carrier {
	cp := *c
	if c.SyncedAt != nil {
		t := *c.SyncedAt
		cp.SyncedAt = &t
	}
	return &cp
}

// CreateCarrier adds a carrier. Names are unique.
func (s *MemoryStore) CreateCarrier(_ context.Context, c *models.Carrier) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.carriers[c.ID]; ok {
		return ErrConflict
	}
	for _, existing := range s.carriers {
		if strings.EqualFold(existing.Name, c.Name) {
			return ErrConflict
		}
	}
	s.carriers[c.ID] = copyCarrier(c)
	return nil
}

// GetCarrier retrieves a carrier by ID
func (s *MemoryStore) GetCarrier(_ context.Context, id string) (*models.Carrier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.carriers[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyCarrier(c), nil
}

// ListCarriers returns carriers by priority then name
func (s *MemoryStore) ListCarriers(_ context.Context) ([]*models.Carrier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Carrier, 0, len(s.carriers))
	for _, c := range s.carriers {
		out = append(out, copyCarrier(c))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// UpdateCarrier replaces a carrier
func (s *MemoryStore) UpdateCarrier(_ context.Context, c *models.Carrier) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.carriers[c.ID]; !ok {
		return ErrNotFound
	}
	for _, existing := range s.carriers {
		if existing.ID != c.ID && strings.EqualFold(existing.Name, c.Name) {
			return ErrConflict
		}
	}
	s.carriers[c.ID] = copyCarrier(c)
	return nil
}

// DeleteCarrier removes a carrier. Carriers referenced by a buy card cannot be deleted.
func (s *MemoryStore) DeleteCarrier(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.carriers[id]; !ok {
		return ErrNotFound
	}
	for _, rc := range s.rateCards {
		if rc.CarrierID == id {
			return ErrConflict
		}
	}
	delete(s.carriers, id)
	return nil
}

// Rate card operations

func copyRateCard(rc *models.RateCard) *models.RateCard {
	cp := *rc
	if rc.SyncedAt != nil {
		t := *rc.SyncedAt
		cp.SyncedAt = &t
	}
	return &cp
}

// CreateRateCard adds a rate card
func (s *MemoryStore) CreateRateCard(_ context.Context, rc *models.RateCard) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rateCards[rc.ID]; ok {
		return ErrConflict
	}
	if rc.CarrierID != "" {
		if _, ok := s.carriers[rc.CarrierID]; !ok {
			return ErrNotFound
		}
	}
	cp := copyRateCard(rc)
	cp.RateCount = len(s.rates[rc.ID])
	s.rateCards[rc.ID] = cp
	return nil
}

// GetRateCard retrieves a rate card by ID
func (s *MemoryStore) GetRateCard(_ context.Context, id string) (*models.RateCard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rc, ok := s.rateCards[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyRateCard(rc), nil
}

// ListRateCards returns rate cards by name, optionally filtered by direction
func (s *MemoryStore) ListRateCards(_ context.Context, direction string) ([]*models.RateCard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []*models.RateCard{}
	for _, rc := range s.rateCards {
		if direction != "" && rc.Direction != direction {
			continue
		}
		out = append(out, copyRateCard(rc))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// UpdateRateCard replaces rate card metadata
func (s *MemoryStore) UpdateRateCard(_ context.Context, rc *models.RateCard) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rateCards[rc.ID]; !ok {
		return ErrNotFound
	}
	if rc.CarrierID != "" {
		if _, ok := s.carriers[rc.CarrierID]; !ok {
			return ErrNotFound
		}
	}
	cp := copyRateCard(rc)
	cp.RateCount = len(s.rates[rc.ID])
	s.rateCards[rc.ID] = cp
	return nil
}

// DeleteRateCard removes a card and its rates. Cards assigned to customers cannot be deleted.
func (s *MemoryStore) DeleteRateCard(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rateCards[id]; !ok {
		return ErrNotFound
	}
	for _, c := range s.customers {
		if c.RateCardID == id {
			return ErrConflict
		}
	}
	delete(s.rateCards, id)
	delete(s.rates, id)
	return nil
}

// ReplaceRates swaps the full rate list of a card
func (s *MemoryStore) ReplaceRates(_ context.Context, cardID string, rates []models.Rate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rc, ok := s.rateCards[cardID]
	if !ok {
		return ErrNotFound
	}
	cp := make([]models.Rate, len(rates))
	for i, r := range rates {
		r.RateCardID = cardID
		r.Normalize()
		cp[i] = r
	}
	sort.Slice(cp, func(i, j int) bool { return cp[i].Prefix < cp[j].Prefix })
	s.rates[cardID] = cp
	rc.RateCount = len(cp)
	return nil
}

// ListRates returns the rates of a card ordered by prefix
func (s *MemoryStore) ListRates(_ context.Context, cardID string) ([]models.Rate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.rateCards[cardID]; !ok {
		return nil, ErrNotFound
	}
	return append([]models.Rate{}, s.rates[cardID]...), nil
}

// FindRatesByPrefixes returns every rate whose prefix is in q.Prefixes
func (s *MemoryStore) FindRatesByPrefixes(_ context.Context, q RateQuery) ([]RateMatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wanted := make(map[string]bool, len(q.Prefixes))
	for _, p := range q.Prefixes {
		wanted[p] = true
	}

	var out []RateMatch
	for id, rc := range s.rateCards {
		if q.CardID != "" && id != q.CardID {
			continue
		}
		if q.Direction != "" && rc.Direction != q.Direction {
			continue
		}
		for _, r := range s.rates[id] {
			if wanted[r.Prefix] {
				out = append(out, RateMatch{CardID: rc.ID, CardName: rc.Name, CarrierID: rc.CarrierID, Rate: r})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CardID != out[j].CardID {
			return out[i].CardID < out[j].CardID
		}
		return out[i].Rate.Prefix < out[j].Rate.Prefix
	})
	return out, nil
}

// Route operations

func copyRoute(r *models.Route) *models.Route {
	cp := *r
	cp.CarrierIDs = append([]string{}, r.CarrierIDs...)
	if r.SyncedAt != nil {
		t := *r.SyncedAt
		cp.SyncedAt = &t
	}
	return &cp
}

// CreateRoute adds a route
func (s *MemoryStore) CreateRoute(_ context.Context, r *models.Route) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.routes[r.ID]; ok {
		return ErrConflict
	}
	for _, id := range r.CarrierIDs {
		if _, ok := s.carriers[id]; !ok {
			return ErrNotFound
		}
	}
	s.routes[r.ID] = copyRoute(r)
	return nil
}

// GetRoute retrieves a route by ID
func (s *MemoryStore) GetRoute(_ context.Context, id string) (*models.Route, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.routes[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyRoute(r), nil
}

// ListRoutes returns routes by prefix then name
func (s *MemoryStore) ListRoutes(_ context.Context) ([]*models.Route, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Route, 0, len(s.routes))
	for _, r := range s.routes {
		out = append(out, copyRoute(r))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Prefix != out[j].Prefix {
			return out[i].Prefix < out[j].Prefix
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// UpdateRoute replaces a route
func (s *MemoryStore) UpdateRoute(_ context.Context, r *models.Route) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.routes[r.ID]; !ok {
		return ErrNotFound
	}
	for _, id := range r.CarrierIDs {
		if _, ok := s.carriers[id]; !ok {
			return ErrNotFound
		}
	}
	s.routes[r.ID] = copyRoute(r)
	return nil
}

// DeleteRoute removes a route
func (s *MemoryStore) DeleteRoute(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.routes[id]; !ok {
		return ErrNotFound
	}
	delete(s.routes, id)
	return nil
}

// DID operations

func copyDID(d *models.DID) *models.DID {
	cp := *d
	if d.AssignedAt != nil {
		t := *d.AssignedAt
		cp.AssignedAt = &t
	}
	return &cp
}

// CreateDID adds a number to the inventory. Numbers are unique.
func (s *MemoryStore) CreateDID(_ context.Context, d *models.DID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.dids[d.ID]; ok {
		return ErrConflict
	}
	for _, existing := range s.dids {
		if existing.Number == d.Number {
			return ErrConflict
		}
	}
	s.dids[d.ID] = copyDID(d)
	return nil
}

// GetDID retrieves a DID by ID
func (s *MemoryStore) GetDID(_ context.Context, id string) (*models.DID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.dids[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyDID(d), nil
}

// GetDIDByNumber retrieves a DID by its E.164 number
func (s *MemoryStore) GetDIDByNumber(_ context.Context, number string) (*models.DID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, d := range s.dids {
		if d.Number == number {
			return copyDID(d), nil
		}
	}
	return nil, ErrNotFound
}

// ListDIDs returns numbers ordered by number
func (s *MemoryStore) ListDIDs(_ context.Context, f models.DIDFilter) ([]*models.DID, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.DID
	for _, d := range s.dids {
		if f.Status != "" && d.Status != f.Status {
			continue
		}
		if f.CustomerID != "" && d.CustomerID != f.CustomerID {
			continue
		}
		if f.Country != "" && !strings.EqualFold(d.Country, f.Country) {
			continue
		}
		if f.Search != "" && !strings.Contains(d.Number, f.Search) && !containsFold(d.Region, f.Search) {
			continue
		}
		out = append(out, copyDID(d))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	page, total := paginate(out, f.Page)
	return page, total, nil
}

// UpdateDID replaces a DID
func (s *MemoryStore) UpdateDID(_ context.Context, d *models.DID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.dids[d.ID]; !ok {
		return ErrNotFound
	}
	for _, existing := range s.dids {
		if existing.ID != d.ID && existing.Number == d.Number {
			return ErrConflict
		}
	}
	s.dids[d.ID] = copyDID(d)
	return nil
}

// DeleteDID removes a number. Assigned numbers must be released first.
func (s *MemoryStore) DeleteDID(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.dids[id]
	if !ok {
		return ErrNotFound
	}
	if d.CustomerID != "" {
		return ErrConflict
	}
	delete(s.dids, id)
	return nil
}

// AssignDID hands an available number to a customer
func (s *MemoryStore) AssignDID(_ context.Context, id, customerID string, at time.Time) (*models.DID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.dids[id]
	if !ok {
		return nil, ErrNotFound
	}
	if d.Status != models.DIDStatusAvailable {
		return nil, ErrConflict
	}
	d.Status = models.DIDStatusAssigned
	d.CustomerID = customerID
	d.AssignedAt = &at
	d.DestinationType = models.DestinationNone
	d.DestinationID = ""
	d.UpdatedAt = at
	return copyDID(d), nil
}

// ReleaseDID returns a customer's number to the pool
func (s *MemoryStore) ReleaseDID(_ context.Context, id, customerID string) (*models.DID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.dids[id]
	if !ok || d.CustomerID != customerID {
		return nil, ErrNotFound
	}
	d.Status = models.DIDStatusAvailable
	d.CustomerID = ""
	d.AssignedAt = nil
	d.DestinationType = models.DestinationNone
	d.DestinationID = ""
	d.UpdatedAt = time.Now().UTC()
	return copyDID(d), nil
}

// Extension operations

// CreateExtension adds an extension. Numbers are unique per customer.
func (s *MemoryStore) CreateExtension(_ context.Context, e *models.Extension) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.extensions[e.ID]; ok {
		return ErrConflict
	}
	for _, existing := range s.extensions {
		if existing.CustomerID == e.CustomerID && existing.Number == e.Number {
			return ErrConflict
		}
	}
	cp := *e
	s.extensions[e.ID] = &cp
	return nil
}

// GetExtension retrieves a customer's extension
func (s *MemoryStore) GetExtension(_ context.Context, customerID, id string) (*models.Extension, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.extensions[id]
	if !ok || e.CustomerID != customerID {
		return nil, ErrNotFound
	}
	cp := *e
	return &cp, nil
}

// ListExtensions returns a customer's extensions by number
func (s *MemoryStore) ListExtensions(_ context.Context, customerID string) ([]*models.Extension, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []*models.Extension{}
	for _, e := range s.extensions {
		if e.CustomerID == customerID {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

// UpdateExtension replaces an extension
func (s *MemoryStore) UpdateExtension(_ context.Context, e *models.Extension) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.extensions[e.ID]
	if !ok || existing.CustomerID != e.CustomerID {
		return ErrNotFound
	}
	for _, other := range s.extensions {
		if other.ID != e.ID && other.CustomerID == e.CustomerID && other.Number == e.Number {
			return ErrConflict
		}
	}
	cp := *e
	s.extensions[e.ID] = &cp
	return nil
}

// DeleteExtension removes a customer's extension
func (s *MemoryStore) DeleteExtension(_ context.Context, customerID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.extensions[id]
	if !ok || e.CustomerID != customerID {
		return ErrNotFound
	}
	delete(s.extensions, id)
	return nil
}

// IVR operations

func copyIVR(m *models.IVRMenu) *models.IVRMenu {
	cp := *m
	cp.Options = append([]models.IVROption{}, m.Options...)
	return &cp
}

// CreateIVRMenu adds an IVR menu
func (s *MemoryStore) CreateIVRMenu(_ context.Context, m *models.IVRMenu) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ivrMenus[m.ID]; ok {
		return ErrConflict
	}
	s.ivrMenus[m.ID] = copyIVR(m)
	return nil
}

// GetIVRMenu retrieves a customer's IVR menu
func (s *MemoryStore) GetIVRMenu(_ context.Context, customerID, id string) (*models.IVRMenu, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.ivrMenus[id]
	if !ok || m.CustomerID != customerID {
		return nil, ErrNotFound
	}
	return copyIVR(m), nil
}

// ListIVRMenus returns a customer's IVR menus by name
func (s *MemoryStore) ListIVRMenus(_ context.Context, customerID string) ([]*models.IVRMenu, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []*models.IVRMenu{}
	for _, m := range s.ivrMenus {
		if m.CustomerID == customerID {
			out = append(out, copyIVR(m))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// UpdateIVRMenu replaces an IVR menu
func (s *MemoryStore) UpdateIVRMenu(_ context.Context, m *models.IVRMenu) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.ivrMenus[m.ID]
	if !ok || existing.CustomerID != m.CustomerID {
		return ErrNotFound
	}
	s.ivrMenus[m.ID] = copyIVR(m)
	return nil
}

// DeleteIVRMenu removes a customer's IVR menu
func (s *MemoryStore) DeleteIVRMenu(_ context.Context, customerID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.ivrMenus[id]
	if !ok || m.CustomerID != customerID {
		return ErrNotFound
	}
	delete(s.ivrMenus, id)
	return nil
}

// Voice agent operations

// CreateVoiceAgent adds a voice agent
func (s *MemoryStore) CreateVoiceAgent(_ context.Context, a *models.VoiceAgent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.voiceAgents[a.ID]; ok {
		return ErrConflict
	}
	cp := *a
	s.voiceAgents[a.ID] = &cp
	return nil
}

// GetVoiceAgent retrieves a customer's voice agent
func (s *MemoryStore) GetVoiceAgent(_ context.Context, customerID, id string) (*models.VoiceAgent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.voiceAgents[id]
	if !ok || a.CustomerID != customerID {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

// ListVoiceAgents returns a customer's voice agents by name
func (s *MemoryStore) ListVoiceAgents(_ context.Context, customerID string) ([]*models.VoiceAgent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []*models.VoiceAgent{}
	for _, a := range s.voiceAgents {
		if a.CustomerID == customerID {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// UpdateVoiceAgent replaces a voice agent
func (s *MemoryStore) UpdateVoiceAgent(_ context.Context, a *models.VoiceAgent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.voiceAgents[a.ID]
	if !ok || existing.CustomerID != a.CustomerID {
		return ErrNotFound
	}
	cp := *a
	s.voiceAgents[a.ID] = &cp
	return nil
}

// DeleteVoiceAgent removes a customer's voice agent
func (s *MemoryStore) DeleteVoiceAgent(_ context.Context, customerID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.voiceAgents[id]
	if !ok || a.CustomerID != customerID {
		return ErrNotFound
	}
	delete(s.voiceAgents, id)
	return nil
}

// CDR operations

// InsertCDR appends a call record. Call IDs are unique.
func (s *MemoryStore) InsertCDR(_ context.Context, c *models.CDR) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.cdrs {
		if existing.CallID == c.CallID {
			return ErrConflict
		}
	}
	cp := *c
	s.cdrs = append(s.cdrs, &cp)
	return nil
}

// CDRExists reports whether a record with callID is stored
func (s *MemoryStore) CDRExists(_ context.Context, callID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.cdrs {
		if c.CallID == callID {
			return true, nil
		}
	}
	return false, nil
}

func matchCDR(c *models.CDR, f models.CDRFilter) bool {
	if f.CustomerID != "" && c.CustomerID != f.CustomerID {
		return false
	}
	if f.Direction != "" && c.Direction != f.Direction {
		return false
	}
	if f.From != nil && c.StartedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && !c.StartedAt.Before(*f.To) {
		return false
	}
	if f.Number != "" && !strings.Contains(c.From, f.Number) && !strings.Contains(c.To, f.Number) {
		return false
	}
	if f.CreatedUntil != nil && c.CreatedAt.After(*f.CreatedUntil) {
		return false
	}
	return true
}

// ListCDRs returns call records newest first
func (s *MemoryStore) ListCDRs(_ context.Context, f models.CDRFilter) ([]*models.CDR, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.CDR
	for _, c := range s.cdrs {
		if matchCDR(c, f) {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	page, total := paginate(out, f.Page)
	return page, total, nil
}

// KYC operations

func copyKYC(k *models.KYCSubmission) *models.KYCSubmission {
	cp := *k
	if k.ReviewedAt != nil {
		t := *k.ReviewedAt
		cp.ReviewedAt = &t
	}
	return &cp
}

// CreateKYC adds a submission
func (s *MemoryStore) CreateKYC(_ context.Context, k *models.KYCSubmission) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.kyc[k.ID]; ok {
		return ErrConflict
	}
	s.kyc[k.ID] = copyKYC(k)
	return nil
}

// GetKYC retrieves a submission by ID
func (s *MemoryStore) GetKYC(_ context.Context, id string) (*models.KYCSubmission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	k, ok := s.kyc[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyKYC(k), nil
}

// ListKYC returns submissions newest first
func (s *MemoryStore) ListKYC(_ context.Context, status models.KYCStatus, customerID string) ([]*models.KYCSubmission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []*models.KYCSubmission{}
	for _, k := range s.kyc {
		if status != "" && k.Status != status {
			continue
		}
		if customerID != "" && k.CustomerID != customerID {
			continue
		}
		out = append(out, copyKYC(k))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// UpdateKYC replaces a submission
func (s *MemoryStore) UpdateKYC(_ context.Context, k *models.KYCSubmission) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.kyc[k.ID]; !ok {
		return ErrNotFound
	}
	s.kyc[k.ID] = copyKYC(k)
	return nil
}

// Audit operations

// InsertAudit appends an audit entry
func (s *MemoryStore) InsertAudit(_ context.Context, a *models.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *a
	s.audit = append(s.audit, &cp)
	return nil
}

func matchAudit(a *models.AuditLog, f models.AuditFilter) bool {
	switch {
	case f.CustomerID != "" && a.CustomerID != f.CustomerID:
		return false
	case f.ActorID != "" && a.ActorID != f.ActorID:
		return false
	case f.EntityType != "" && a.EntityType != f.EntityType:
		return false
	case f.EntityID != "" && a.EntityID != f.EntityID:
		return false
	case f.Action != "" && a.Action != f.Action:
		return false
	case f.Since != nil && a.CreatedAt.Before(*f.Since):
		return false
	case f.Until != nil && !a.CreatedAt.Before(*f.Until):
		return false
	}
	return true
}

// ListAudit returns audit entries newest first
func (s *MemoryStore) ListAudit(_ context.Context, f models.AuditFilter) ([]*models.AuditLog, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.AuditLog
	for i := len(s.audit) - 1; i >= 0; i-- {
		if matchAudit(s.audit[i], f) {
			cp := *s.audit[i]
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	page, total := paginate(out, f.Page)
	return page, total, nil
}

// DeleteAuditBefore removes entries created before t
func (s *MemoryStore) DeleteAuditBefore(_ context.Context, t time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.audit[:0]
	for _, a := range s.audit {
		if !a.CreatedAt.Before(t) {
			kept = append(kept, a)
		}
	}
	n := len(s.audit) - len(kept)
	s.audit = kept
	return n, nil
}

// Trash operations

func copyTrash(t *models.TrashItem) *models.TrashItem {
	cp := *t
	cp.Snapshot = append([]byte(nil), t.Snapshot...)
	return &cp
}

// InsertTrash stores a deleted entity snapshot
func (s *MemoryStore) InsertTrash(_ context.Context, t *models.TrashItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.trash[t.ID]; ok {
		return ErrConflict
	}
	s.trash[t.ID] = copyTrash(t)
	return nil
}

// GetTrash retrieves a trash item by ID
func (s *MemoryStore) GetTrash(_ context.Context, id string) (*models.TrashItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.trash[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyTrash(t), nil
}

// ListTrash returns trash items most recently deleted first
func (s *MemoryStore) ListTrash(_ context.Context, f models.TrashFilter) ([]*models.TrashItem, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.TrashItem
	for _, t := range s.trash {
		if f.EntityType != "" && t.EntityType != f.EntityType {
			continue
		}
		if f.CustomerID != "" && t.CustomerID != f.CustomerID {
			continue
		}
		out = append(out, copyTrash(t))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DeletedAt.Equal(out[j].DeletedAt) {
			return out[i].DeletedAt.After(out[j].DeletedAt)
		}
		return out[i].ID < out[j].ID
	})
	page, total := paginate(out, f.Page)
	return page, total, nil
}

// DeleteTrash removes a trash item
func (s *MemoryStore) DeleteTrash(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.trash[id]; !ok {
		return ErrNotFound
	}
	delete(s.trash, id)
	return nil
}

// ListExpiredTrash returns up to limit items whose expiry is at or before now, oldest first
func (s *MemoryStore) ListExpiredTrash(_ context.Context, now time.Time, limit int) ([]*models.TrashItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []*models.TrashItem{}
	for _, t := range s.trash {
		if t.Expired(now) {
			out = append(out, copyTrash(t))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ExpiresAt.Equal(out[j].ExpiresAt) {
			return out[i].ExpiresAt.Before(out[j].ExpiresAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Aggregates

// DashboardCounts computes the portal home page figures
func (s *MemoryStore) DashboardCounts(_ context.Context, customerID string, since time.Time) (*models.DashboardCounts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.customers[customerID]
	if !ok {
		return nil, ErrNotFound
	}

	out := &models.DashboardCounts{Balance: c.Balance}
	for _, d := range s.dids {
		if d.CustomerID == customerID {
			out.DIDs++
		}
	}
	for _, e := range s.extensions {
		if e.CustomerID == customerID {
			out.Extensions++
		}
	}
	for _, m := range s.ivrMenus {
		if m.CustomerID == customerID {
			out.IVRMenus++
		}
	}
	for _, a := range s.voiceAgents {
		if a.CustomerID == customerID {
			out.VoiceAgents++
		}
	}
	billsec := 0
	for _, cdr := range s.cdrs {
		if cdr.CustomerID != customerID || cdr.StartedAt.Before(since) {
			continue
		}
		out.CallsToday++
		billsec += cdr.Billsec
		if cdr.BillingStatus == models.BillingStatusBilled {
			out.SpendToday += cdr.Cost
		} else {
			out.UnbilledCalls++
		}
	}
	out.MinutesToday = billsec / 60
	return out, nil
}

// SidebarCounts computes the portal navigation badges
func (s *MemoryStore) SidebarCounts(_ context.Context, customerID string) (*models.SidebarCounts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := &models.SidebarCounts{}
	for _, d := range s.dids {
		if d.CustomerID == customerID {
			out.DIDs++
		}
	}
	for _, e := range s.extensions {
		if e.CustomerID == customerID {
			out.Extensions++
		}
	}
	for _, m := range s.ivrMenus {
		if m.CustomerID == customerID {
			out.IVRMenus++
		}
	}
	for _, a := range s.voiceAgents {
		if a.CustomerID == customerID {
			out.VoiceAgents++
		}
	}
	for _, u := range s.users {
		if u.CustomerID == customerID {
			out.Users++
		}
	}
	return out, nil
}

// AdminCounts computes the admin console figures
func (s *MemoryStore) AdminCounts(_ context.Context, since time.Time) (*models.AdminCounts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := &models.AdminCounts{
		Customers:  len(s.customers),
		Carriers:   len(s.carriers),
		RateCards:  len(s.rateCards),
		Routes:     len(s.routes),
		DIDsTotal:  len(s.dids),
		TrashItems: len(s.trash),
	}
	for _, c := range s.customers {
		switch c.Status {
		case models.CustomerStatusActive:
			out.ActiveCustomers++
		case models.CustomerStatusSuspended:
			out.SuspendedCustomers++
		}
	}
	for _, d := range s.dids {
		if d.Status == models.DIDStatusAssigned {
			out.DIDsAssigned++
		}
	}
	for _, k := range s.kyc {
		if k.Status == models.KYCStatusPending {
			out.PendingKYC++
		}
	}
	for _, c := range s.cdrs {
		if !c.StartedAt.Before(since) {
			out.CDRsToday++
		}
	}
	return out, nil
}

// Lifecycle

// HealthCheck always succeeds for the memory store
func (s *MemoryStore) HealthCheck(_ context.Context) error {
	return nil
}

// Vacuum is a no-op for the memory store
func (s *MemoryStore) Vacuum(_ context.Context) error {
	return nil
}

// Close is a no-op for the memory store
func (s *MemoryStore) Close() error {
	return nil
}
