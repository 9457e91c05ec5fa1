package fbr

import (
	"github.com/shopspring/decimal"
)

// Wire invoice type values expected by the FBR digital invoicing API
const (
	WireInvoiceTypeSale   = "Sale Invoice"
	WireInvoiceTypeDebit  = "Debit Note"
	WireInvoiceTypeCredit = "Credit Note"
)

// WireItem is one invoice line in the authority's wire format
type WireItem struct {
	HSCode                   string          `json:"hsCode"`
	ProductDescription       string          `json:"productDescription"`
	Rate                     string          `json:"rate"`
	UOM                      string          `json:"uoM"`
	Quantity                 decimal.Decimal `json:"quantity"`
	ValueSalesExcludingST    decimal.Decimal `json:"valueSalesExcludingST"`
	SalesTaxApplicable       decimal.Decimal `json:"salesTaxApplicable"`
	SalesTaxWithheldAtSource decimal.Decimal `json:"salesTaxWithheldAtSource"`
	ExtraTax                 decimal.Decimal `json:"extraTax"`
	FurtherTax               decimal.Decimal `json:"furtherTax"`
	FEDPayable               decimal.Decimal `json:"fedPayable"`
	Discount                 decimal.Decimal `json:"discount"`
	TotalValues              decimal.Decimal `json:"totalValues"`
	SROScheduleNo            string          `json:"sroScheduleNo"`
	SROItemSerialNo          string          `json:"sroItemSerialNo"`
	SaleType                 string          `json:"saleType"`
}

// WirePayload is the transformed, authority-specific representation of a sale.
// InvoiceRefNo is a stable reference derived from the sale so that the authority
// can recognise a resubmission of the same invoice instead of recording a duplicate.
type WirePayload struct {
	InvoiceType           string     `json:"invoiceType"`
	InvoiceDate           string     `json:"invoiceDate"`
	SellerNTNCNIC         string     `json:"sellerNTNCNIC"`
	SellerBusinessName    string     `json:"sellerBusinessName"`
	SellerProvince        string     `json:"sellerProvince"`
	SellerAddress         string     `json:"sellerAddress"`
	BuyerNTNCNIC          string     `json:"buyerNTNCNIC"`
	BuyerBusinessName     string     `json:"buyerBusinessName"`
	BuyerProvince         string     `json:"buyerProvince"`
	BuyerRegistrationType string     `json:"buyerRegistrationType"`
	InvoiceRefNo          string     `json:"invoiceRefNo"`
	Items                 []WireItem `json:"items"`
}

// SubmissionAck is the authority's acknowledgement of a submitted invoice
type SubmissionAck struct {
	// InvoiceNumber is the fiscal invoice number assigned by FBR
	InvoiceNumber string `json:"invoiceNumber"`
	// Dated is the acknowledgement timestamp as reported by the authority
	Dated string `json:"dated"`
}
