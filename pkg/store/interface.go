package store

import (
	"context"
	"errors"
	"time"

	"github.com/voxlane/backoffice/pkg/models"
)

// Store defines the interface for data persistence.
// The memory, SQLite and PostgreSQL stores implement it.
type Store interface {
	// Customer operations
	CreateCustomer(ctx context.Context, c *models.Customer) error
	GetCustomer(ctx context.Context, id string) (*models.Customer, error)
	GetCustomerByAccountNumber(ctx context.Context, accountNumber string) (*models.Customer, error)
	ListCustomers(ctx context.Context, f models.CustomerFilter) ([]*models.Customer, int, error)
	UpdateCustomer(ctx context.Context, c *models.Customer) error
	DeleteCustomer(ctx context.Context, id string) error

	// Ledger operations
	ApplyTransaction(ctx context.Context, txn *models.Transaction) (*models.Customer, error)
	ListTransactions(ctx context.Context, customerID string, page models.Page) ([]*models.Transaction, int, error)

	// User and session operations
	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	ListUsers(ctx context.Context, customerID string) ([]*models.User, error)
	UpdateUser(ctx context.Context, u *models.User) error
	DeleteUser(ctx context.Context, id string) error
	CreateSession(ctx context.Context, s *models.Session) error
	GetSession(ctx context.Context, tokenHash string) (*models.Session, error)
	DeleteSession(ctx context.Context, tokenHash string) error
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int, error)

	// Carrier, rate card and route operations
	CreateCarrier(ctx context.Context, c *models.Carrier) error
	GetCarrier(ctx context.Context, id string) (*models.Carrier, error)
	ListCarriers(ctx context.Context) ([]*models.Carrier, error)
	UpdateCarrier(ctx context.Context, c *models.Carrier) error
	DeleteCarrier(ctx context.Context, id string) error

	CreateRateCard(ctx context.Context, rc *models.RateCard) error
	GetRateCard(ctx context.Context, id string) (*models.RateCard, error)
	ListRateCards(ctx context.Context, direction string) ([]*models.RateCard, error)
	UpdateRateCard(ctx context.Context, rc *models.RateCard) error
	DeleteRateCard(ctx context.Context, id string) error
	ReplaceRates(ctx context.Context, cardID string, rates []models.Rate) error
	ListRates(ctx context.Context, cardID string) ([]models.Rate, error)
	FindRatesByPrefixes(ctx context.Context, q RateQuery) ([]RateMatch, error)

	CreateRoute(ctx context.Context, r *models.Route) error
	GetRoute(ctx context.Context, id string) (*models.Route, error)
	ListRoutes(ctx context.Context) ([]*models.Route, error)
	UpdateRoute(ctx context.Context, r *models.Route) error
	DeleteRoute(ctx context.Context, id string) error

	// DID operations
	CreateDID(ctx context.Context, d *models.DID) error
	GetDID(ctx context.Context, id string) (*models.DID, error)
	GetDIDByNumber(ctx context.Context, number string) (*models.DID, error)
	ListDIDs(ctx context.Context, f models.DIDFilter) ([]*models.DID, int, error)
	UpdateDID(ctx context.Context, d *models.DID) error
	DeleteDID(ctx context.Context, id string) error
	AssignDID(ctx context.Context, id, customerID string, at time.Time) (*models.DID, error)
	ReleaseDID(ctx context.Context, id, customerID string) (*models.DID, error)

	// Customer-scoped PBX operations. A foreign customerID yields ErrNotFound.
	CreateExtension(ctx context.Context, e *models.Extension) error
	GetExtension(ctx context.Context, customerID, id string) (*models.Extension, error)
	ListExtensions(ctx context.Context, customerID string) ([]*models.Extension, error)
	UpdateExtension(ctx context.Context, e *models.Extension) error
	DeleteExtension(ctx context.Context, customerID, id string) error

	CreateIVRMenu(ctx context.Context, m *models.IVRMenu) error
	GetIVRMenu(ctx context.Context, customerID, id string) (*models.IVRMenu, error)
	ListIVRMenus(ctx context.Context, customerID string) ([]*models.IVRMenu, error)
	UpdateIVRMenu(ctx context.Context, m *models.IVRMenu) error
	DeleteIVRMenu(ctx context.Context, customerID, id string) error

	CreateVoiceAgent(ctx context.Context, a *models.VoiceAgent) error
	GetVoiceAgent(ctx context.Context, customerID, id string) (*models.VoiceAgent, error)
	ListVoiceAgents(ctx context.Context, customerID string) ([]*models.VoiceAgent, error)
	UpdateVoiceAgent(ctx context.Context, a *models.VoiceAgent) error
	DeleteVoiceAgent(ctx context.Context, customerID, id string) error

	// CDR operations
	InsertCDR(ctx context.Context, c *models.CDR) error
	CDRExists(ctx context.Context, callID string) (bool, error)
	ListCDRs(ctx context.Context, f models.CDRFilter) ([]*models.CDR, int, error)

	// KYC operations
	CreateKYC(ctx context.Context, k *models.KYCSubmission) error
	GetKYC(ctx context.Context, id string) (*models.KYCSubmission, error)
	ListKYC(ctx context.Context, status models.KYCStatus, customerID string) ([]*models.KYCSubmission, error)
	UpdateKYC(ctx context.Context, k *models.KYCSubmission) error

	// Audit operations
	InsertAudit(ctx context.Context, a *models.AuditLog) error
	ListAudit(ctx context.Context, f models.AuditFilter) ([]*models.AuditLog, int, error)
	DeleteAuditBefore(ctx context.Context, t time.Time) (int, error)

	// Trash operations
	InsertTrash(ctx context.Context, t *models.TrashItem) error
	GetTrash(ctx context.Context, id string) (*models.TrashItem, error)
	ListTrash(ctx context.Context, f models.TrashFilter) ([]*models.TrashItem, int, error)
	DeleteTrash(ctx context.Context, id string) error
	ListExpiredTrash(ctx context.Context, now time.Time, limit int) ([]*models.TrashItem, error)

	// Aggregates. since marks the start of "today" for call counters.
	DashboardCounts(ctx context.Context, customerID string, since time.Time) (*models.DashboardCounts, error)
	SidebarCounts(ctx context.Context, customerID string) (*models.SidebarCounts, error)
	AdminCounts(ctx context.Context, since time.Time) (*models.AdminCounts, error)

	// Lifecycle
	HealthCheck(ctx context.Context) error
	Vacuum(ctx context.Context) error
	Close() error
}

// RateQuery selects rates whose prefix is one of Prefixes.
// An empty CardID searches every card of the given direction.
type RateQuery struct {
	Direction string
	CardID    string
	Prefixes  []string
}

// RateMatch is a rate together with the card it belongs to
type RateMatch struct {
	CardID    string
	CardName  string
	CarrierID string
	Rate      models.Rate
}

// Config holds database configuration
type Config struct {
	Type string // "memory", "sqlite" or "postgres"
	DSN  string // Connection string or SQLite path

	// PostgreSQL specific
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// NewStore creates a store based on configuration
func NewStore(config Config) (Store, error) {
	switch config.Type {
	case "memory":
		return NewMemoryStore(), nil
	case "postgres", "postgresql":
		return NewPostgreSQLStore(config)
	case "sqlite", "":
		path := config.DSN
		if path == "" {
			path = "voxlane.db"
		}
		return NewSQLiteStore(path)
	default:
		return nil, ErrUnsupportedDatabase
	}
}

var (
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("conflict")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrUnsupportedDatabase = errors.New("unsupported database type")
)

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*SQLStore)(nil)
)
