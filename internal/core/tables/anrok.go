package tables

import (
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/pgbulk/internal/core"
)

func init() {
	registerAnrokTransactions()
}

// VatStatus is Anrok's overall VAT ID validation status, stored by name in
// a text column.
type VatStatus string

const (
	VatValid      VatStatus = "valid"
	VatInvalid    VatStatus = "invalid"
	VatPending    VatStatus = "pending"
	VatNotChecked VatStatus = "not_checked"
)

var vatStatusValues = []string{"Valid", "Invalid", "Pending", "Not checked"}

// ParseVatStatus maps the export's labels onto VatStatus. Empty input is
// VatNotChecked.
func ParseVatStatus(s string) VatStatus {
	switch NormalizeLabel(s) {
	case "valid":
		return VatValid
	case "invalid":
		return VatInvalid
	case "pending":
		return VatPending
	default:
		return VatNotChecked
	}
}

// AnrokTransaction is one row of anrok_transactions.
type AnrokTransaction struct {
	TransactionID string         `bulk:"transaction_id,pk"`
	CustomerID    pgtype.Text    `bulk:"customer_id"`
	CustomerName  pgtype.Text    `bulk:"customer_name"`
	VatStatus     VatStatus      `bulk:"overall_vat_id_status,type=text"`
	InvoiceDate   pgtype.Date    `bulk:"invoice_date"`
	TaxDate       pgtype.Date    `bulk:"tax_date"`
	Currency      pgtype.Text    `bulk:"transaction_currency"`
	SalesAmount   pgtype.Numeric `bulk:"sales_amount"`
	TaxAmount     pgtype.Numeric `bulk:"tax_amount"`
	InvoiceAmount pgtype.Numeric `bulk:"invoice_amount"`
	Void          pgtype.Bool    `bulk:"void"`
	Region        pgtype.Text    `bulk:"customer_address_region"`
	CountryCode   pgtype.Text    `bulk:"customer_country_code"`
	LoadID        uuid.UUID      `bulk:"load_id"`
}

func (AnrokTransaction) TableName() string { return "anrok_transactions" }

var anrokTransactionFields = []core.FieldSpec{
	{Name: "Transaction ID", Field: "TransactionID", Type: core.FieldText, Required: true},
	{Name: "Customer ID", Field: "CustomerID", Type: core.FieldText, AllowEmpty: true},
	{Name: "Customer name", Field: "CustomerName", Type: core.FieldText, AllowEmpty: true},
	{Name: "Overall VAT ID validation status", Field: "VatStatus", Type: core.FieldEnum, AllowEmpty: true, EnumValues: vatStatusValues},
	{Name: "Invoice date", Field: "InvoiceDate", Type: core.FieldDate, AllowEmpty: true},
	{Name: "Tax date", Field: "TaxDate", Type: core.FieldDate, AllowEmpty: true},
	{Name: "Transaction currency", Field: "Currency", Type: core.FieldText, AllowEmpty: true},
	{Name: "Sales amount", Field: "SalesAmount", Type: core.FieldNumeric, AllowEmpty: true},
	{Name: "Tax amount", Field: "TaxAmount", Type: core.FieldNumeric, AllowEmpty: true},
	{Name: "Invoice amount", Field: "InvoiceAmount", Type: core.FieldNumeric, AllowEmpty: true},
	{Name: "Void", Field: "Void", Type: core.FieldBool, AllowEmpty: true},
	{Name: "Customer address region", Field: "Region", Type: core.FieldText, AllowEmpty: true, Normalizer: NormalizeRegion},
	{Name: "Customer country code", Field: "CountryCode", Type: core.FieldText, AllowEmpty: true},
}

func buildAnrokTransaction(row []string, idx core.HeaderIndex, loadID uuid.UUID) (AnrokTransaction, error) {
	return AnrokTransaction{
		TransactionID: core.Cell(row, idx, "Transaction ID"),
		CustomerID:    core.ToPgText(core.Cell(row, idx, "Customer ID")),
		CustomerName:  core.ToPgText(core.Cell(row, idx, "Customer name")),
		VatStatus:     ParseVatStatus(core.Cell(row, idx, "Overall VAT ID validation status")),
		InvoiceDate:   core.ToPgDate(core.Cell(row, idx, "Invoice date")),
		TaxDate:       core.ToPgDate(core.Cell(row, idx, "Tax date")),
		Currency:      core.ToPgText(core.Cell(row, idx, "Transaction currency")),
		SalesAmount:   core.ToPgNumeric(core.Cell(row, idx, "Sales amount")),
		TaxAmount:     core.ToPgNumeric(core.Cell(row, idx, "Tax amount")),
		InvoiceAmount: core.ToPgNumeric(core.Cell(row, idx, "Invoice amount")),
		Void:          core.ToPgBool(core.Cell(row, idx, "Void")),
		Region:        core.ToPgText(NormalizeRegion(core.Cell(row, idx, "Customer address region"))),
		CountryCode:   core.ToPgText(core.Cell(row, idx, "Customer country code")),
		LoadID:        loadID,
	}, nil
}

func registerAnrokTransactions() {
	core.Register(core.TableDefinition{
		Info: core.TableInfo{
			Key:   "anrok_transactions",
			Group: "Anrok",
			Label: "Transactions",
			Keys:  []string{"Transaction ID"},
		},
		FieldSpecs: anrokTransactionFields,
		Loader:     core.NewCSVLoader(anrokTransactionFields, buildAnrokTransaction),
	})
}
