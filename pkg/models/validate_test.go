package models

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validationFields(t *testing.T, err error) map[string]string {
	t.Helper()
	var verr *ValidationError
	require.True(t, errors.As(err, &verr), "expected *ValidationError, got %v", err)
	return verr.Fields
}

func TestValidateCustomerRequest(t *testing.T) {
	ok := &CustomerRequest{Name: "Acme", Email: "ops@acme.test", Country: "US", Currency: "EUR", Phone: "+15551234567"}
	require.NoError(t, Validate(ok))

	bad := &CustomerRequest{Name: "A", Email: "nope", Country: "USA", Plan: "gold"}
	fields := validationFields(t, Validate(bad))
	assert.Contains(t, fields, "name")
	assert.Contains(t, fields, "email")
	assert.Contains(t, fields, "country")
	assert.Equal(t, "must be one of: payg, standard, enterprise", fields["plan"])
}

func TestValidateMoneyBounds(t *testing.T) {
	fields := validationFields(t, Validate(&AdjustmentRequest{Amount: NewMoney(200000, 0), Reason: "bonus"}))
	assert.Equal(t, "must be at most 100000.00", fields["amount"])

	fields = validationFields(t, Validate(&AdjustmentRequest{Amount: -NewMoney(200000, 0), Reason: "claw back"}))
	assert.Equal(t, "must be at least -100000.00", fields["amount"])

	assert.NoError(t, Validate(&AdjustmentRequest{Amount: -NewMoney(100000, 0), Reason: "claw back"}))

	req := &CustomerRequest{Name: "Acme", Email: "ops@acme.test", Country: "US", CreditLimit: NewMoney(200000, 0)}
	fields = validationFields(t, Validate(req))
	assert.Equal(t, "must be at most 100000.00", fields["credit_limit"])

	req.CreditLimit = -NewMoney(1, 0)
	fields = validationFields(t, Validate(req))
	assert.Equal(t, "must not be negative", fields["credit_limit"])
}

func TestValidatePasswordLength(t *testing.T) {
	req := &UserRequest{Email: "a@acme.test", Password: strings.Repeat("x", 73), FullName: "A", Role: RoleMember}
	fields := validationFields(t, Validate(req))
	assert.Equal(t, "must be at most 72 characters", fields["password"])

	req.Password = strings.Repeat("x", 72)
	assert.NoError(t, Validate(req))
}

func TestValidateRateCardRequest(t *testing.T) {
	fields := validationFields(t, Validate(&RateCardRequest{Name: "Buy A", Direction: DirectionBuy}))
	assert.Equal(t, "is required", fields["carrier_id"])

	fields = validationFields(t, Validate(&RateCardRequest{Name: "Sell A", Direction: DirectionSell, CarrierID: "c1"}))
	assert.Equal(t, "must be empty", fields["carrier_id"])

	assert.NoError(t, Validate(&RateCardRequest{Name: "Sell A", Direction: DirectionSell}))
}

func TestValidateRatesUniquePrefix(t *testing.T) {
	req := &RatesRequest{Rates: []Rate{
		{Prefix: "44", RatePerMin: 10_000},
		{Prefix: "44", RatePerMin: 12_000},
	}}
	fields := validationFields(t, Validate(req))
	assert.Equal(t, "must not contain duplicates", fields["rates"])

	req.Rates[1].Prefix = "4420"
	assert.NoError(t, Validate(req))

	req.Rates[1].Prefix = "44x"
	fields = validationFields(t, Validate(req))
	assert.Equal(t, "must contain digits only", fields["rates[1].prefix"])
}

func TestValidateIVRRequest(t *testing.T) {
	req := &IVRRequest{
		Name:     "Main",
		Greeting: "Welcome",
		Options: []IVROption{
			{Digit: "1", Action: "extension", Target: "101"},
			{Digit: "9", Action: "hangup"},
		},
	}
	require.NoError(t, Validate(req))

	req.Options = append(req.Options, IVROption{Digit: "1", Action: "ivr"})
	fields := validationFields(t, Validate(req))
	assert.Contains(t, fields, "options")
	assert.Equal(t, "is required", fields["options[2].target"])
}

func TestValidateDIDDestination(t *testing.T) {
	tests := []struct {
		name    string
		req     DIDDestinationRequest
		wantErr bool
	}{
		{"none", DIDDestinationRequest{DestinationType: DestinationNone}, false},
		{"none with id", DIDDestinationRequest{DestinationType: DestinationNone, DestinationID: "x"}, true},
		{"extension", DIDDestinationRequest{DestinationType: DestinationExtension, DestinationID: "ext-1"}, false},
		{"extension without id", DIDDestinationRequest{DestinationType: DestinationExtension}, true},
		{"sip uri", DIDDestinationRequest{DestinationType: DestinationSIPURI, DestinationID: "sip:100@pbx.test"}, false},
		{"bad sip uri", DIDDestinationRequest{DestinationType: DestinationSIPURI, DestinationID: "100@pbx.test"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(&tt.req)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateCDRIngest(t *testing.T) {
	req := &CDRIngestRequest{CallID: "c1", Direction: "outbound", From: "100", To: "4420", Duration: 10, Billsec: 20, Disposition: "answered"}
	fields := validationFields(t, Validate(req))
	assert.Equal(t, "is required", fields["started_at"])
	assert.Equal(t, "must not exceed duration", fields["billsec"])
}

func TestRolePermissions(t *testing.T) {
	assert.True(t, RoleSuperAdmin.HasPermission(PermTrashPurge))
	assert.False(t, RoleAdmin.HasPermission(PermTrashPurge))
	assert.False(t, RoleAdmin.HasPermission(PermPlatformSync))
	assert.True(t, RoleOwner.HasPermission(PermTeamManage))
	assert.False(t, RoleMember.HasPermission(PermTeamManage))
	assert.False(t, RoleMember.HasPermission(PermCustomersRead))
	assert.False(t, Role("guest").IsValid())
	assert.True(t, RoleAdmin.IsStaff())
	assert.False(t, RoleOwner.IsStaff())
}

func TestPageNormalize(t *testing.T) {
	assert.Equal(t, Page{Limit: 50}, Page{}.Normalize())
	assert.Equal(t, Page{Limit: 500, Offset: 10}, Page{Limit: 9999, Offset: 10}.Normalize())
	assert.Equal(t, Page{Limit: 5}, Page{Limit: 5, Offset: -1}.Normalize())
}
