package paymentgateway

import (
	"errors"
	"strings"
)

// TransactionStatus is the billpaymentStatus code reported by ToyyibPay.
type TransactionStatus string

const (
	TransactionStatusSuccess     TransactionStatus = "1"
	TransactionStatusPending     TransactionStatus = "2"
	TransactionStatusFailed      TransactionStatus = "3"
	TransactionStatusPendingBank TransactionStatus = "4"
)

// BillTransactionsRequest is posted form-encoded to getBillTransactions.
type BillTransactionsRequest struct {
	BillCode          string
	BillPaymentStatus string
}

func (r *BillTransactionsRequest) Validate() error {
	if strings.TrimSpace(r.BillCode) == "" {
		return errors.New("billCode is required")
	}
	return nil
}

// BillTransaction is one row of the getBillTransactions response.
type BillTransaction struct {
	BillName                string            `json:"billName"`
	BillDescription         string            `json:"billDescription"`
	BillTo                  string            `json:"billTo"`
	BillEmail               string            `json:"billEmail"`
	BillPhone               string            `json:"billPhone"`
	BillStatus              string            `json:"billStatus"`
	BillPaymentStatus       TransactionStatus `json:"billpaymentStatus"`
	BillPaymentChannel      string            `json:"billpaymentChannel"`
	BillPaymentAmount       string            `json:"billpaymentAmount"`
	BillPaymentInvoiceNo    string            `json:"billpaymentInvoiceNo"`
	BillPaymentDate         string            `json:"billPaymentDate"`
	BillExternalReferenceNo string            `json:"billExternalReferenceNo"`
	SettlementReferenceNo   string            `json:"SettlementReferenceNo"`
}

// Params flattens the transaction into callback-style parameter names.
func (t BillTransaction) Params(billCode string) map[string]string {
	params := map[string]string{
		"billcode":       billCode,
		"status_id":      string(t.BillPaymentStatus),
		"amount":         t.BillPaymentAmount,
		"transaction_id": t.BillPaymentInvoiceNo,
		"order_id":       t.BillExternalReferenceNo,
	}
	if t.BillPaymentChannel != "" {
		params["channel"] = t.BillPaymentChannel
	}
	if t.BillPaymentDate != "" {
		params["payment_date"] = t.BillPaymentDate
	}
	for k, v := range params {
		if v == "" {
			delete(params, k)
		}
	}
	return params
}

// Latest picks the transaction that decides the bill: a successful payment wins,
// otherwise the last attempt reported.
func Latest(txns []BillTransaction) (BillTransaction, bool) {
	var (
		last  BillTransaction
		found bool
	)
	for _, t := range txns {
		if t.BillPaymentStatus == "" {
			continue
		}
		if t.BillPaymentStatus == TransactionStatusSuccess {
			return t, true
		}
		last, found = t, true
	}
	return last, found
}
