package tables

import (
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/pgbulk/internal/core"
)

func init() {
	registerSfdcCustomers()
}

// AccountType is the Salesforce account type. It is stored as its ordinal
// in a smallint column.
type AccountType int16

const (
	AccountUnknown AccountType = iota
	AccountProspect
	AccountCustomer
	AccountPartner
	AccountChurned
)

var accountTypeNames = [...]string{"Unknown", "Prospect", "Customer", "Partner", "Churned"}

func (t AccountType) String() string {
	if t < 0 || int(t) >= len(accountTypeNames) {
		return "Unknown"
	}
	return accountTypeNames[t]
}

// ParseAccountType matches s case-insensitively, accepting Salesforce's
// "Customer - Direct" style suffixes. Unmatched values are AccountUnknown.
func ParseAccountType(s string) AccountType {
	s = strings.TrimSpace(s)
	if head, _, ok := strings.Cut(s, " - "); ok {
		s = head
	}
	for i, name := range accountTypeNames {
		if strings.EqualFold(name, s) {
			return AccountType(i)
		}
	}
	return AccountUnknown
}

// SfdcCustomer is one row of sfdc_customers.
type SfdcCustomer struct {
	AccountID     string         `bulk:"account_id_casesafe,pk"`
	AccountName   pgtype.Text    `bulk:"account_name"`
	Type          AccountType    `bulk:"type,type=int2"`
	LastActivity  pgtype.Date    `bulk:"last_activity"`
	BillingState  pgtype.Text    `bulk:"billing_state"`
	AnnualRevenue pgtype.Numeric `bulk:"annual_revenue"`
	Employees     pgtype.Int8    `bulk:"employees"`
	LoadID        uuid.UUID      `bulk:"load_id"`
}

func (SfdcCustomer) TableName() string { return "sfdc_customers" }

var sfdcCustomerFields = []core.FieldSpec{
	{Name: "account_id_casesafe", Field: "AccountID", Type: core.FieldText, Required: true},
	{Name: "account_name", Field: "AccountName", Type: core.FieldText, AllowEmpty: true},
	{Name: "type", Field: "Type", Type: core.FieldText, AllowEmpty: true},
	{Name: "last_activity", Field: "LastActivity", Type: core.FieldDate, AllowEmpty: true},
	{Name: "billing_state", Field: "BillingState", Type: core.FieldText, AllowEmpty: true, Normalizer: NormalizeRegion},
	{Name: "annual_revenue", Field: "AnnualRevenue", Type: core.FieldNumeric, AllowEmpty: true},
	{Name: "employees", Field: "Employees", Type: core.FieldInt, AllowEmpty: true},
}

func buildSfdcCustomer(row []string, idx core.HeaderIndex, loadID uuid.UUID) (SfdcCustomer, error) {
	return SfdcCustomer{
		AccountID:     core.Cell(row, idx, "account_id_casesafe"),
		AccountName:   core.ToPgText(core.Cell(row, idx, "account_name")),
		Type:          ParseAccountType(core.Cell(row, idx, "type")),
		LastActivity:  core.ToPgDate(core.Cell(row, idx, "last_activity")),
		BillingState:  core.ToPgText(NormalizeRegion(core.Cell(row, idx, "billing_state"))),
		AnnualRevenue: core.ToPgNumeric(core.Cell(row, idx, "annual_revenue")),
		Employees:     core.ToPgInt8(core.Cell(row, idx, "employees")),
		LoadID:        loadID,
	}, nil
}

func registerSfdcCustomers() {
	core.Register(core.TableDefinition{
		Info: core.TableInfo{
			Key:   "sfdc_customers",
			Group: "SFDC",
			Label: "Customers",
			Keys:  []string{"account_id_casesafe"},
		},
		FieldSpecs: sfdcCustomerFields,
		Loader:     core.NewCSVLoader(sfdcCustomerFields, buildSfdcCustomer),
	})
}
