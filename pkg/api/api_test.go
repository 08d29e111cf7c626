package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/voxlane/backoffice/pkg/api"
	"github.com/voxlane/backoffice/pkg/auth"
	"github.com/voxlane/backoffice/pkg/connexcs"
	"github.com/voxlane/backoffice/pkg/models"
	"github.com/voxlane/backoffice/pkg/platformsync"
	"github.com/voxlane/backoffice/pkg/store"
)

const (
	adminEmail    = "admin@voxlane.test"
	adminPassword = "correct-horse-battery"
	ownerEmail    = "owner@acme.test"
	ownerPassword = "acme-owner-secret"
)

type testServer struct {
	t      *testing.T
	store  store.Store
	router http.Handler
	admin  string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	st := store.NewMemoryStore()
	authSvc := auth.NewService(st, auth.Config{}, nil)
	if _, err := authSvc.EnsureSuperAdmin(context.Background(), adminEmail, adminPassword); err != nil {
		t.Fatalf("Failed to create admin: %v", err)
	}

	client := connexcs.NewClient(connexcs.Config{MockMode: true}, nil)
	syncSvc := platformsync.NewService(st, client, nil, nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		syncSvc.Wait(ctx)
	})

	h := api.NewHandler(api.Deps{Store: st, Auth: authSvc, Sync: syncSvc, Platform: client})
	ts := &testServer{t: t, store: st, router: h.Router()}
	ts.admin = ts.login(adminEmail, adminPassword)
	return ts
}

func (ts *testServer) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	ts.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			ts.t.Fatalf("Failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

// expect performs a request and fails unless the status matches. The body is decoded into out when given.
func (ts *testServer) expect(status int, method, path, token string, body, out interface{}) {
	ts.t.Helper()
	w := ts.do(method, path, token, body)
	if w.Code != status {
		ts.t.Fatalf("%s %s: expected status %d, got %d. Response: %s", method, path, status, w.Code, w.Body.String())
	}
	if out != nil {
		if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
			ts.t.Fatalf("%s %s: failed to parse response: %v", method, path, err)
		}
	}
}

func (ts *testServer) login(email, password string) string {
	ts.t.Helper()
	var resp models.LoginResponse
	ts.expect(http.StatusOK, "POST", "/api/auth/login", "", models.LoginRequest{Email: email, Password: password}, &resp)
	if resp.Token == "" {
		ts.t.Fatal("Expected a session token")
	}
	return resp.Token
}

// createCustomer creates Acme with an owner login and returns the customer and the owner's token
func (ts *testServer) createCustomer() (*models.Customer, string) {
	ts.t.Helper()
	var created struct {
		models.Customer
		Owner *models.User `json:"owner"`
	}
	ts.expect(http.StatusCreated, "POST", "/api/admin/customers", ts.admin, models.CustomerRequest{
		Name:          "Acme Telecom",
		Email:         ownerEmail,
		Country:       "US",
		OwnerName:     "Ada Owner",
		OwnerPassword: ownerPassword,
	}, &created)
	if created.Owner == nil || created.Owner.Role != models.RoleOwner {
		ts.t.Fatalf("Expected an owner user, got %+v", created.Owner)
	}
	if !strings.HasPrefix(created.AccountNumber, "VX") {
		ts.t.Errorf("Expected a VX account number, got %q", created.AccountNumber)
	}
	return &created.Customer, ts.login(ownerEmail, ownerPassword)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	var resp api.HealthResponse
	ts.expect(http.StatusOK, "GET", "/health", "", nil, &resp)
	if resp.Status != "ok" {
		t.Errorf("Expected status ok, got %s", resp.Status)
	}
	if resp.Platform != "mock" {
		t.Errorf("Expected mock platform, got %s", resp.Platform)
	}
}

func TestLoginLogout(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do("POST", "/api/auth/login", "", models.LoginRequest{Email: adminEmail, Password: "wrong-password"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("Expected status 401 for a bad password, got %d", w.Code)
	}

	var me api.MeResponse
	ts.expect(http.StatusOK, "GET", "/api/auth/me", ts.admin, nil, &me)
	if me.Principal.Role != models.RoleSuperAdmin {
		t.Errorf("Expected super_admin, got %s", me.Principal.Role)
	}
	if len(me.Permissions) == 0 {
		t.Error("Expected permissions for the admin")
	}

	ts.expect(http.StatusNoContent, "POST", "/api/auth/logout", ts.admin, nil, nil)
	if w := ts.do("GET", "/api/auth/me", ts.admin, nil); w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401 after logout, got %d", w.Code)
	}
}

func TestSurfaceSeparation(t *testing.T) {
	ts := newTestServer(t)
	_, owner := ts.createCustomer()

	t.Run("StaffOnPortal", func(t *testing.T) {
		if w := ts.do("GET", "/api/portal/dashboard", ts.admin, nil); w.Code != http.StatusForbidden {
			t.Errorf("Expected status 403, got %d", w.Code)
		}
	})
	t.Run("CustomerOnAdmin", func(t *testing.T) {
		if w := ts.do("GET", "/api/admin/customers", owner, nil); w.Code != http.StatusForbidden {
			t.Errorf("Expected status 403, got %d", w.Code)
		}
	})
	t.Run("Anonymous", func(t *testing.T) {
		if w := ts.do("GET", "/api/portal/dashboard", "", nil); w.Code != http.StatusUnauthorized {
			t.Errorf("Expected status 401, got %d", w.Code)
		}
	})
	t.Run("UnknownRoute", func(t *testing.T) {
		var resp api.ErrorResponse
		ts.expect(http.StatusNotFound, "GET", "/api/nowhere", "", nil, &resp)
		if resp.Error != "not_found" {
			t.Errorf("Expected not_found, got %s", resp.Error)
		}
	})
}

func TestCreateCustomerValidation(t *testing.T) {
	ts := newTestServer(t)

	var resp api.ErrorResponse
	ts.expect(http.StatusBadRequest, "POST", "/api/admin/customers", ts.admin, map[string]string{
		"name":  "Acme",
		"email": "not-an-email",
	}, &resp)
	if resp.Error != "validation_error" {
		t.Errorf("Expected validation_error, got %s", resp.Error)
	}
	if _, ok := resp.Fields["email"]; !ok {
		t.Errorf("Expected an email field error, got %v", resp.Fields)
	}

	ts.expect(http.StatusBadRequest, "POST", "/api/admin/customers", ts.admin, `{"name":"Acme","email":"a@b.test","bogus":1}`, &resp)
	if resp.Error != "invalid_request" {
		t.Errorf("Expected invalid_request for an unknown field, got %s", resp.Error)
	}

	ts.expect(http.StatusBadRequest, "POST", "/api/admin/customers", ts.admin, models.CustomerRequest{
		Name:       "Acme",
		Email:      "a@b.test",
		RateCardID: "missing",
	}, &resp)
	if resp.Fields["rate_card_id"] != "does not exist" {
		t.Errorf("Expected a rate_card_id error, got %v", resp.Fields)
	}
}

func TestDuplicateCustomerEmail(t *testing.T) {
	ts := newTestServer(t)
	ts.createCustomer()

	w := ts.do("POST", "/api/admin/customers", ts.admin, models.CustomerRequest{Name: "Acme Again", Email: strings.ToUpper(ownerEmail)})
	if w.Code != http.StatusConflict {
		t.Fatalf("Expected status 409, got %d. Response: %s", w.Code, w.Body.String())
	}
}

func TestSuspendBlocksPortal(t *testing.T) {
	ts := newTestServer(t)
	cust, owner := ts.createCustomer()

	ts.expect(http.StatusOK, "GET", "/api/portal/dashboard", owner, nil, nil)
	ts.expect(http.StatusOK, "POST", "/api/admin/customers/"+cust.ID+"/suspend", ts.admin, nil, nil)

	if w := ts.do("GET", "/api/portal/dashboard", owner, nil); w.Code != http.StatusForbidden {
		t.Fatalf("Expected status 403 for a suspended customer, got %d", w.Code)
	}

	ts.expect(http.StatusOK, "POST", "/api/admin/customers/"+cust.ID+"/activate", ts.admin, nil, nil)
	ts.expect(http.StatusOK, "GET", "/api/portal/dashboard", owner, nil, nil)

	var logs models.ListResponse[*models.AuditLog]
	ts.expect(http.StatusOK, "GET", "/api/admin/audit?entity_id="+cust.ID+"&action=customer.suspend", ts.admin, nil, &logs)
	if logs.Total != 1 {
		t.Errorf("Expected one suspend audit entry, got %d", logs.Total)
	}
}

func TestDIDPurchaseFlow(t *testing.T) {
	ts := newTestServer(t)
	cust, owner := ts.createCustomer()

	var did models.DID
	ts.expect(http.StatusCreated, "POST", "/api/admin/dids", ts.admin, models.DIDRequest{
		Number:       "+14155550100",
		Country:      "US",
		MonthlyPrice: models.NewMoney(5, 0),
	}, &did)

	var available models.ListResponse[*models.DID]
	ts.expect(http.StatusOK, "GET", "/api/portal/dids/available", owner, nil, &available)
	if available.Total != 1 {
		t.Fatalf("Expected 1 available DID, got %d", available.Total)
	}

	var resp api.ErrorResponse
	ts.expect(http.StatusPaymentRequired, "POST", "/api/portal/dids/"+did.ID+"/purchase", owner, nil, &resp)
	if resp.Error != "insufficient_funds" {
		t.Errorf("Expected insufficient_funds, got %s", resp.Error)
	}

	var ledger api.LedgerResponse
	ts.expect(http.StatusCreated, "POST", "/api/portal/billing/topup", owner, models.TopUpRequest{Amount: models.NewMoney(10, 0)}, &ledger)
	if ledger.Balance != models.NewMoney(10, 0) {
		t.Errorf("Expected balance 10.00, got %s", ledger.Balance)
	}

	var purchase api.PurchaseResponse
	ts.expect(http.StatusOK, "POST", "/api/portal/dids/"+did.ID+"/purchase", owner, nil, &purchase)
	if purchase.DID.CustomerID != cust.ID {
		t.Errorf("Expected DID assigned to %s, got %s", cust.ID, purchase.DID.CustomerID)
	}

	var bal models.BalanceResponse
	ts.expect(http.StatusOK, "GET", "/api/portal/billing/balance", owner, nil, &bal)
	if bal.Balance != models.NewMoney(5, 0) {
		t.Errorf("Expected balance 5.00 after purchase, got %s", bal.Balance)
	}

	// Assigned numbers and customers holding them cannot be deleted
	ts.expect(http.StatusConflict, "DELETE", "/api/admin/dids/"+did.ID, ts.admin, nil, nil)
	ts.expect(http.StatusConflict, "DELETE", "/api/admin/customers/"+cust.ID, ts.admin, nil, nil)

	ts.expect(http.StatusOK, "POST", "/api/portal/dids/"+did.ID+"/release", owner, nil, nil)
	var mine models.ListResponse[*models.DID]
	ts.expect(http.StatusOK, "GET", "/api/portal/dids", owner, nil, &mine)
	if mine.Total != 0 {
		t.Errorf("Expected no DIDs after release, got %d", mine.Total)
	}
}

func TestMemberPermissions(t *testing.T) {
	ts := newTestServer(t)
	_, owner := ts.createCustomer()

	ts.expect(http.StatusCreated, "POST", "/api/portal/users", owner, models.UserRequest{
		Email:    "member@acme.test",
		Password: "member-password",
		FullName: "Max Member",
		Role:     models.RoleMember,
	}, nil)
	member := ts.login("member@acme.test", "member-password")

	ts.expect(http.StatusOK, "GET", "/api/portal/billing/balance", member, nil, nil)
	if w := ts.do("POST", "/api/portal/billing/topup", member, models.TopUpRequest{Amount: models.NewMoney(1, 0)}); w.Code != http.StatusForbidden {
		t.Errorf("Expected status 403 for a member top-up, got %d", w.Code)
	}

	var resp api.ErrorResponse
	ts.expect(http.StatusBadRequest, "POST", "/api/portal/users", owner, models.UserRequest{
		Email:    "sneaky@acme.test",
		Password: "sneaky-password",
		FullName: "Sneaky",
		Role:     models.RoleAdmin,
	}, &resp)
	if _, ok := resp.Fields["role"]; !ok {
		t.Errorf("Expected a role field error, got %v", resp.Fields)
	}
}

func TestLongPasswordRejected(t *testing.T) {
	ts := newTestServer(t)
	_, owner := ts.createCustomer()

	var resp api.ErrorResponse
	ts.expect(http.StatusBadRequest, "POST", "/api/portal/users", owner, models.UserRequest{
		Email:    "long@acme.test",
		Password: strings.Repeat("p", 100),
		FullName: "Long Password",
		Role:     models.RoleMember,
	}, &resp)
	if resp.Error != "validation_error" {
		t.Errorf("Expected validation_error, got %s", resp.Error)
	}
	if _, ok := resp.Fields["password"]; !ok {
		t.Errorf("Expected a password field error, got %v", resp.Fields)
	}

	// 40 two-byte runes pass the character count but exceed bcrypt's byte limit
	ts.expect(http.StatusBadRequest, "POST", "/api/portal/users", owner, models.UserRequest{
		Email:    "wide@acme.test",
		Password: strings.Repeat("é", 40),
		FullName: "Wide Password",
		Role:     models.RoleMember,
	}, &resp)
	if resp.Fields["password"] != "must be at most 72 bytes" {
		t.Errorf("Expected a byte-limit password error, got %v", resp.Fields)
	}
}

func TestKYCReview(t *testing.T) {
	ts := newTestServer(t)
	cust, owner := ts.createCustomer()

	req := models.KYCRequest{
		LegalName:    "Acme Telecom LLC",
		DocumentType: "company_registration",
		DocumentRef:  "REG-1234",
		Address:      "1 Main St, Springfield",
		Country:      "US",
	}
	var sub models.KYCSubmission
	ts.expect(http.StatusCreated, "POST", "/api/portal/kyc", owner, req, &sub)
	ts.expect(http.StatusConflict, "POST", "/api/portal/kyc", owner, req, nil)

	var pending models.ListResponse[*models.KYCSubmission]
	ts.expect(http.StatusOK, "GET", "/api/admin/kyc", ts.admin, nil, &pending)
	if pending.Total != 1 {
		t.Fatalf("Expected 1 pending submission, got %d", pending.Total)
	}

	// Rejections need a note
	ts.expect(http.StatusBadRequest, "POST", "/api/admin/kyc/"+sub.ID+"/review", ts.admin, models.KYCReviewRequest{Decision: models.KYCStatusRejected}, nil)
	ts.expect(http.StatusOK, "POST", "/api/admin/kyc/"+sub.ID+"/review", ts.admin, models.KYCReviewRequest{Decision: models.KYCStatusApproved}, nil)
	ts.expect(http.StatusConflict, "POST", "/api/admin/kyc/"+sub.ID+"/review", ts.admin, models.KYCReviewRequest{Decision: models.KYCStatusApproved}, nil)

	var got models.Customer
	ts.expect(http.StatusOK, "GET", "/api/admin/customers/"+cust.ID, ts.admin, nil, &got)
	if got.KYCStatus != models.KYCStatusApproved {
		t.Errorf("Expected customer KYC approved, got %s", got.KYCStatus)
	}
}

func TestCarrierDeleteAndRestore(t *testing.T) {
	ts := newTestServer(t)

	var carrier models.Carrier
	ts.expect(http.StatusCreated, "POST", "/api/admin/carriers", ts.admin, models.CarrierRequest{Name: "Alpha", Host: "sip.alpha.test"}, &carrier)
	if carrier.Port != 5060 || carrier.Protocol != "udp" {
		t.Errorf("Expected carrier defaults, got port %d protocol %s", carrier.Port, carrier.Protocol)
	}

	var route models.Route
	ts.expect(http.StatusCreated, "POST", "/api/admin/routes", ts.admin, models.RouteRequest{
		Name:       "World",
		Strategy:   models.RouteStrategyLCR,
		CarrierIDs: []string{carrier.ID},
	}, &route)

	var resp api.ErrorResponse
	ts.expect(http.StatusConflict, "DELETE", "/api/admin/carriers/"+carrier.ID, ts.admin, nil, &resp)
	if !strings.Contains(resp.Message, "World") {
		t.Errorf("Expected the blocking route in the message, got %q", resp.Message)
	}

	ts.expect(http.StatusOK, "DELETE", "/api/admin/routes/"+route.ID, ts.admin, nil, nil)

	var del struct {
		ID      string `json:"id"`
		TrashID string `json:"trash_id"`
	}
	ts.expect(http.StatusOK, "DELETE", "/api/admin/carriers/"+carrier.ID, ts.admin, nil, &del)
	if del.TrashID == "" {
		t.Fatal("Expected a trash id")
	}
	ts.expect(http.StatusNotFound, "GET", "/api/admin/carriers/"+carrier.ID, ts.admin, nil, nil)

	var items models.ListResponse[*models.TrashItem]
	ts.expect(http.StatusOK, "GET", "/api/admin/trash?entity_type=carrier", ts.admin, nil, &items)
	if items.Total != 1 {
		t.Fatalf("Expected 1 carrier in the trash, got %d", items.Total)
	}

	ts.expect(http.StatusOK, "POST", "/api/admin/trash/"+del.TrashID+"/restore", ts.admin, nil, nil)
	var restored models.Carrier
	ts.expect(http.StatusOK, "GET", "/api/admin/carriers/"+carrier.ID, ts.admin, nil, &restored)
	if restored.Name != "Alpha" {
		t.Errorf("Expected restored carrier Alpha, got %s", restored.Name)
	}
	ts.expect(http.StatusNotFound, "POST", "/api/admin/trash/"+del.TrashID+"/restore", ts.admin, nil, nil)
}

func TestRateCardRatesAndLCR(t *testing.T) {
	ts := newTestServer(t)

	var carrier models.Carrier
	ts.expect(http.StatusCreated, "POST", "/api/admin/carriers", ts.admin, models.CarrierRequest{Name: "Alpha", Host: "sip.alpha.test"}, &carrier)

	var buy, sell models.RateCard
	ts.expect(http.StatusCreated, "POST", "/api/admin/rate-cards", ts.admin, models.RateCardRequest{Name: "Alpha buy", Direction: models.DirectionBuy, CarrierID: carrier.ID}, &buy)
	ts.expect(http.StatusCreated, "POST", "/api/admin/rate-cards", ts.admin, models.RateCardRequest{Name: "Retail", Direction: models.DirectionSell}, &sell)

	ts.expect(http.StatusOK, "PUT", "/api/admin/rate-cards/"+buy.ID+"/rates", ts.admin, models.RatesRequest{Rates: []models.Rate{
		{Prefix: "1", RatePerMin: models.NewMoney(0, 10000)},
		{Prefix: "1415", RatePerMin: models.NewMoney(0, 8000)},
	}}, nil)
	ts.expect(http.StatusOK, "PUT", "/api/admin/rate-cards/"+sell.ID+"/rates", ts.admin, models.RatesRequest{Rates: []models.Rate{
		{Prefix: "1", RatePerMin: models.NewMoney(0, 20000)},
	}}, nil)

	var rates models.ListResponse[models.Rate]
	ts.expect(http.StatusOK, "GET", "/api/admin/rate-cards/"+buy.ID+"/rates", ts.admin, nil, &rates)
	if rates.Total != 2 || rates.Items[0].Increment != 60 {
		t.Fatalf("Expected 2 normalized rates, got %+v", rates)
	}

	// Duplicate prefixes are rejected
	ts.expect(http.StatusBadRequest, "PUT", "/api/admin/rate-cards/"+buy.ID+"/rates", ts.admin, models.RatesRequest{Rates: []models.Rate{
		{Prefix: "1", RatePerMin: 1},
		{Prefix: "1", RatePerMin: 2},
	}}, nil)

	ts.expect(http.StatusBadRequest, "PUT", "/api/admin/rate-cards/"+sell.ID, ts.admin, models.RateCardRequest{Name: "Retail", Direction: models.DirectionBuy, CarrierID: carrier.ID}, nil)

	var res struct {
		Candidates []struct {
			CarrierID  string       `json:"carrier_id"`
			Prefix     string       `json:"prefix"`
			RatePerMin models.Money `json:"rate_per_min"`
		} `json:"candidates"`
		Sell *struct {
			RatePerMin models.Money `json:"rate_per_min"`
		} `json:"sell"`
	}
	ts.expect(http.StatusOK, "GET", "/api/admin/lcr?number=%2B14155550100&sell_card_id="+sell.ID, ts.admin, nil, &res)
	if len(res.Candidates) != 1 || res.Candidates[0].Prefix != "1415" {
		t.Fatalf("Expected the longest buy prefix, got %+v", res.Candidates)
	}
	if res.Sell == nil || res.Sell.RatePerMin != models.NewMoney(0, 20000) {
		t.Errorf("Expected a sell quote of 0.02, got %+v", res.Sell)
	}

	ts.expect(http.StatusBadRequest, "GET", "/api/admin/lcr", ts.admin, nil, nil)
}

func TestAdminRolesCannotPurge(t *testing.T) {
	ts := newTestServer(t)

	hash, err := auth.HashPassword("staff-password")
	if err != nil {
		t.Fatalf("Failed to hash password: %v", err)
	}
	now := time.Now().UTC()
	if err := ts.store.CreateUser(context.Background(), &models.User{
		ID:           "staff-1",
		Email:        "staff@voxlane.test",
		PasswordHash: hash,
		FullName:     "Staff",
		Role:         models.RoleAdmin,
		Status:       models.UserStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}); err != nil {
		t.Fatalf("Failed to create staff user: %v", err)
	}
	staff := ts.login("staff@voxlane.test", "staff-password")

	ts.expect(http.StatusOK, "GET", "/api/admin/customers", staff, nil, nil)
	if w := ts.do("POST", "/api/admin/trash/sweep", staff, nil); w.Code != http.StatusForbidden {
		t.Errorf("Expected status 403 for an admin sweep, got %d", w.Code)
	}
	if w := ts.do("POST", "/api/admin/platform/sync", staff, nil); w.Code != http.StatusForbidden {
		t.Errorf("Expected status 403 for an admin sync, got %d", w.Code)
	}

	var sweep api.SweepResponse
	ts.expect(http.StatusOK, "POST", "/api/admin/trash/sweep", ts.admin, nil, &sweep)
}

func TestPlatformSync(t *testing.T) {
	ts := newTestServer(t)
	cust, _ := ts.createCustomer()

	var run platformsync.Run
	ts.expect(http.StatusOK, "POST", "/api/admin/platform/sync?wait=true", ts.admin, nil, &run)
	if run.Status != platformsync.RunCompleted {
		t.Fatalf("Expected completed run, got %s: %+v", run.Status, run.Errors)
	}
	if run.Results[models.EntityCustomer].OK != 1 {
		t.Errorf("Expected 1 customer synced, got %+v", run.Results[models.EntityCustomer])
	}

	var got models.Customer
	ts.expect(http.StatusOK, "GET", "/api/admin/customers/"+cust.ID, ts.admin, nil, &got)
	if got.ExternalID == 0 {
		t.Error("Expected the customer to carry an external id")
	}

	var status platformsync.Status
	ts.expect(http.StatusOK, "GET", "/api/admin/platform/sync/status", ts.admin, nil, &status)
	if status.LastRun == nil || status.LastRun.ID != run.ID {
		t.Errorf("Expected last run %s, got %+v", run.ID, status.LastRun)
	}

	var conn connexcs.Status
	ts.expect(http.StatusOK, "GET", "/api/admin/platform/connexcs/status", ts.admin, nil, &conn)
	if conn.Mode != "mock" {
		t.Errorf("Expected mock mode, got %s", conn.Mode)
	}
}

func TestExtensionSecretShownOnce(t *testing.T) {
	ts := newTestServer(t)
	_, owner := ts.createCustomer()

	var ext models.Extension
	ts.expect(http.StatusCreated, "POST", "/api/portal/extensions", owner, models.ExtensionRequest{Number: "101", Name: "Front desk"}, &ext)
	if len(ext.Secret) != 20 {
		t.Fatalf("Expected a 20 character secret, got %q", ext.Secret)
	}

	var got models.Extension
	ts.expect(http.StatusOK, "GET", "/api/portal/extensions/"+ext.ID, owner, nil, &got)
	if got.Secret != "" {
		t.Error("Expected the secret to be hidden after create")
	}

	var logs models.ListResponse[*models.AuditLog]
	ts.expect(http.StatusOK, "GET", "/api/admin/audit?entity_type=extension", ts.admin, nil, &logs)
	for _, l := range logs.Items {
		if strings.Contains(string(l.After), ext.Secret) {
			t.Errorf("Audit entry %s leaks the SIP secret", l.Action)
		}
	}
}

func TestSystemEndpoints(t *testing.T) {
	ts := newTestServer(t)

	var stats models.AdminCounts
	ts.expect(http.StatusOK, "GET", "/api/admin/stats", ts.admin, nil, &stats)

	var sys api.SystemResponse
	ts.expect(http.StatusOK, "GET", "/api/admin/system", ts.admin, nil, &sys)
	if sys.Database != "ok" {
		t.Errorf("Expected database ok, got %s", sys.Database)
	}
	if sys.System.Process.Goroutines == 0 {
		t.Error("Expected process information")
	}

	ts.expect(http.StatusServiceUnavailable, "POST", "/api/admin/system/cleanup", ts.admin, nil, nil)
}
