package fbr

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/pos/backend/internal/domain/sale"
)

const invoiceDateLayout = "2006-01-02"

var (
	rateFloor   = decimal.Zero
	rateCeiling = decimal.NewFromInt(100)
)

// InvoiceRefNo derives the stable reference number reported on every
// submission of a sale. It must never change across retries so the authority
// can dedupe a resubmission whose earlier acknowledgement was lost.
func InvoiceRefNo(s *sale.Sale) string {
	tenantShort := strings.SplitN(s.TenantID.String(), "-", 2)[0]
	return fmt.Sprintf("POS-%s-%s", strings.ToUpper(tenantShort), s.SaleNumber)
}

// Transform converts an internal sale record into the wire format the
// authority expects, applying tax and discount math. It is a pure function of
// its inputs: no I/O, no clock reads, so a retry transforms identically.
//
// On any validation failure it returns *ValidationErrors carrying every
// violation found, and no partial payload.
func Transform(s *sale.Sale, seller Seller, ref *ReferenceDataSet) (*WirePayload, error) {
	violations := validate(s, seller, ref)
	if len(violations) > 0 {
		return nil, &ValidationErrors{Violations: violations}
	}

	items := make([]WireItem, len(s.Items))
	for i, it := range s.Items {
		valueExclST := it.Quantity.Mul(it.UnitPrice).Sub(it.Discount).Round(2)
		salesTax := valueExclST.Mul(it.TaxRate).Div(decimal.NewFromInt(100)).Round(2)

		items[i] = WireItem{
			HSCode:                   it.HSCode,
			ProductDescription:       it.Description,
			Rate:                     formatRate(it.TaxRate),
			UOM:                      it.UnitOfMeasure,
			Quantity:                 it.Quantity,
			ValueSalesExcludingST:    valueExclST,
			SalesTaxApplicable:       salesTax,
			SalesTaxWithheldAtSource: decimal.Zero,
			ExtraTax:                 decimal.Zero,
			FurtherTax:               decimal.Zero,
			FEDPayable:               decimal.Zero,
			Discount:                 it.Discount.Round(2),
			TotalValues:              valueExclST.Add(salesTax),
			SROScheduleNo:            it.SROScheduleNo,
			SaleType:                 it.SaleType,
		}
	}

	return &WirePayload{
		InvoiceType:           wireInvoiceType(s.Type),
		InvoiceDate:           s.SaleDate.Format(invoiceDateLayout),
		SellerNTNCNIC:         seller.NTNCNIC,
		SellerBusinessName:    seller.BusinessName,
		SellerProvince:        seller.Province,
		SellerAddress:         seller.Address,
		BuyerNTNCNIC:          s.BuyerNTN,
		BuyerBusinessName:     s.BuyerName,
		BuyerProvince:         s.BuyerProvince,
		BuyerRegistrationType: s.BuyerRegistrationType,
		InvoiceRefNo:          InvoiceRefNo(s),
		Items:                 items,
	}, nil
}

// validate collects every violation instead of stopping at the first
func validate(s *sale.Sale, seller Seller, ref *ReferenceDataSet) []Violation {
	var violations []Violation
	add := func(field, code, message string) {
		violations = append(violations, Violation{Field: field, Code: code, Message: message})
	}

	if !s.Type.IsValid() {
		add("invoiceType", "INVALID_INVOICE_TYPE",
			fmt.Sprintf("invoice type %q must be one of SALE, DEBIT, CREDIT", s.Type))
	}
	if s.BuyerProvince != "" && !ref.HasProvince(s.BuyerProvince) {
		add("buyerProvince", "UNKNOWN_PROVINCE",
			fmt.Sprintf("province %q is not in the FBR province list", s.BuyerProvince))
	}
	if !ref.HasProvince(seller.Province) {
		add("sellerProvince", "UNKNOWN_PROVINCE",
			fmt.Sprintf("province %q is not in the FBR province list", seller.Province))
	}
	if len(s.Items) == 0 {
		add("items", "EMPTY_INVOICE", "invoice must contain at least one item")
	}

	for i, it := range s.Items {
		field := func(name string) string { return fmt.Sprintf("items[%d].%s", i, name) }

		if !ref.HasHSCode(it.HSCode) {
			add(field("hsCode"), "UNKNOWN_HS_CODE",
				fmt.Sprintf("HS code %q is not in the FBR reference data", it.HSCode))
		}
		if !ref.HasUnitOfMeasure(it.UnitOfMeasure) {
			add(field("uoM"), "UNKNOWN_UOM",
				fmt.Sprintf("unit of measure %q is not in the FBR reference data", it.UnitOfMeasure))
		}
		if it.TaxRate.LessThan(rateFloor) || it.TaxRate.GreaterThan(rateCeiling) {
			add(field("rate"), "RATE_OUT_OF_RANGE",
				fmt.Sprintf("tax rate %s must be between 0 and 100", it.TaxRate))
		}
		if it.Quantity.IsNegative() {
			add(field("quantity"), "NEGATIVE_QUANTITY", "quantity must not be negative")
		}
		if it.UnitPrice.IsNegative() {
			add(field("unitPrice"), "NEGATIVE_AMOUNT", "unit price must not be negative")
		}
		if it.Discount.IsNegative() {
			add(field("discount"), "NEGATIVE_AMOUNT", "discount must not be negative")
		}
	}

	return violations
}

func wireInvoiceType(t sale.InvoiceType) string {
	switch t {
	case sale.InvoiceTypeDebit:
		return WireInvoiceTypeDebit
	case sale.InvoiceTypeCredit:
		return WireInvoiceTypeCredit
	default:
		return WireInvoiceTypeSale
	}
}

func formatRate(rate decimal.Decimal) string {
	return rate.String() + "%"
}
