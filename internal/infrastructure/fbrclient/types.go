package fbrclient

// Wire types for the FBR digital invoicing API responses.

// statusCode values used by the authority's validation envelope
const (
	statusCodeValid   = "00"
	statusCodeInvalid = "01"
)

// itemStatus is the per-line validation verdict inside a response
type itemStatus struct {
	ItemSNo    string `json:"itemSNo"`
	StatusCode string `json:"statusCode"`
	Status     string `json:"status"`
	InvoiceNo  string `json:"invoiceNo"`
	ErrorCode  string `json:"errorCode"`
	Error      string `json:"error"`
}

// validationEnvelope is the structured validation verdict for a payload
type validationEnvelope struct {
	StatusCode      string       `json:"statusCode"`
	Status          string       `json:"status"`
	Error           string       `json:"error"`
	ErrorCode       string       `json:"errorCode"`
	InvoiceStatuses []itemStatus `json:"invoiceStatuses"`
}

// invoiceResponse is the body of both the validate and submit endpoints
type invoiceResponse struct {
	InvoiceNumber      string              `json:"invoiceNumber"`
	Dated              string              `json:"dated"`
	ValidationResponse *validationEnvelope `json:"validationResponse"`
}
