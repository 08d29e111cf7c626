package models

// DashboardCounts are the portal home page figures for one customer
type DashboardCounts struct {
	Balance       Money `json:"balance"`
	DIDs          int   `json:"dids"`
	Extensions    int   `json:"extensions"`
	IVRMenus      int   `json:"ivr_menus"`
	VoiceAgents   int   `json:"voice_agents"`
	CallsToday    int   `json:"calls_today"`
	MinutesToday  int   `json:"minutes_today"`
	SpendToday    Money `json:"spend_today"`
	UnbilledCalls int   `json:"unbilled_calls"`
}

// SidebarCounts are the badge numbers of the portal navigation
type SidebarCounts struct {
	DIDs        int `json:"dids"`
	Extensions  int `json:"extensions"`
	IVRMenus    int `json:"ivr_menus"`
	VoiceAgents int `json:"voice_agents"`
	Users       int `json:"users"`
}

// AdminCounts are the admin console figures
type AdminCounts struct {
	Customers          int `json:"customers"`
	ActiveCustomers    int `json:"active_customers"`
	SuspendedCustomers int `json:"suspended_customers"`
	Carriers           int `json:"carriers"`
	RateCards          int `json:"rate_cards"`
	Routes             int `json:"routes"`
	DIDsTotal          int `json:"dids_total"`
	DIDsAssigned       int `json:"dids_assigned"`
	PendingKYC         int `json:"pending_kyc"`
	TrashItems         int `json:"trash_items"`
	CDRsToday          int `json:"cdrs_today"`
}

// Page is a limit/offset window for list operations
type Page struct {
	Limit  int
	Offset int
}

// Page size bounds
const (
	DefaultPageLimit = 50
	MaxPageLimit     = 500
)

// Normalize clamps the page to the allowed window
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// ListResponse is the envelope of every list endpoint
type ListResponse[T any] struct {
	Items []T `json:"items"`
	Count int `json:"count"`
	Total int `json:"total"`
}

// NewListResponse wraps items, never encoding a null array
func NewListResponse[T any](items []T, total int) ListResponse[T] {
	if items == nil {
		items = []T{}
	}
	return ListResponse[T]{Items: items, Count: len(items), Total: total}
}
