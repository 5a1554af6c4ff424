package tables

import (
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/pgbulk/internal/core"
)

func init() {
	registerNsCustomers()
}

// NsCustomer is one row of ns_customers. Columns follow the field names
// unless a mapping file (BULK_MAPPING_FILE) describes the entity.
type NsCustomer struct {
	InternalID     string `bulk:",pk"`
	SalesforceID   pgtype.Text
	Name           pgtype.Text
	CompanyName    pgtype.Text
	Balance        pgtype.Numeric
	UnbilledOrders pgtype.Numeric
	OverdueBalance pgtype.Numeric
	DaysOverdue    pgtype.Int8
	LoadID         uuid.UUID
}

func (NsCustomer) TableName() string { return "ns_customers" }

var nsCustomerFields = []core.FieldSpec{
	{Name: "internal_id", Field: "InternalID", Type: core.FieldText, Required: true},
	{Name: "salesforce_id_io", Field: "SalesforceID", Type: core.FieldText, AllowEmpty: true},
	{Name: "name", Field: "Name", Type: core.FieldText, AllowEmpty: true},
	{Name: "company_name", Field: "CompanyName", Type: core.FieldText, AllowEmpty: true},
	{Name: "balance", Field: "Balance", Type: core.FieldNumeric, AllowEmpty: true},
	{Name: "unbilled_orders", Field: "UnbilledOrders", Type: core.FieldNumeric, AllowEmpty: true},
	{Name: "overdue_balance", Field: "OverdueBalance", Type: core.FieldNumeric, AllowEmpty: true},
	{Name: "days_overdue", Field: "DaysOverdue", Type: core.FieldInt, AllowEmpty: true},
}

func buildNsCustomer(row []string, idx core.HeaderIndex, loadID uuid.UUID) (NsCustomer, error) {
	return NsCustomer{
		InternalID:     core.Cell(row, idx, "internal_id"),
		SalesforceID:   core.ToPgText(core.Cell(row, idx, "salesforce_id_io")),
		Name:           core.ToPgText(core.Cell(row, idx, "name")),
		CompanyName:    core.ToPgText(core.Cell(row, idx, "company_name")),
		Balance:        core.ToPgNumeric(core.Cell(row, idx, "balance")),
		UnbilledOrders: core.ToPgNumeric(core.Cell(row, idx, "unbilled_orders")),
		OverdueBalance: core.ToPgNumeric(core.Cell(row, idx, "overdue_balance")),
		DaysOverdue:    core.ToPgInt8(core.Cell(row, idx, "days_overdue")),
		LoadID:         loadID,
	}, nil
}

func registerNsCustomers() {
	core.Register(core.TableDefinition{
		Info: core.TableInfo{
			Key:   "ns_customers",
			Group: "NS",
			Label: "Customers",
			Keys:  []string{"internal_id"},
		},
		FieldSpecs: nsCustomerFields,
		Loader:     core.NewCSVLoader(nsCustomerFields, buildNsCustomer),
	})
}
