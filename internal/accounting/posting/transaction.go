package posting

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Kind tags a transaction variant.
type Kind string

const (
	KindSale     Kind = "SALE"
	KindPurchase Kind = "PURCHASE"
	KindExpense  Kind = "EXPENSE"
	KindReceipt  Kind = "RECEIPT"
	KindPayment  Kind = "PAYMENT"
	KindJournal  Kind = "JOURNAL"
	KindContra   Kind = "CONTRA"
	KindNote     Kind = "DEBIT_CREDIT_NOTE"
)

// Kinds lists every transaction variant the rule set must handle.
func Kinds() []Kind {
	return []Kind{KindSale, KindPurchase, KindExpense, KindReceipt, KindPayment, KindJournal, KindContra, KindNote}
}

// Header carries fields shared by every transaction.
type Header struct {
	ID   uuid.UUID `json:"id"`
	Ref  string    `json:"ref"`
	Date time.Time `json:"date" validate:"required"`
	Memo string    `json:"memo,omitempty"`
}

// Head returns the shared header.
func (h Header) Head() Header { return h }

// Transaction is the closed set of records the rule set knows how to post.
// Only types in this package implement it.
type Transaction interface {
	Head() Header
	Kind() Kind
	isTransaction()
}

// SalesLine is one item sold; UnitCost drives the COGS posting.
type SalesLine struct {
	ItemID             int64           `json:"item_id"`
	Quantity           decimal.Decimal `json:"quantity" validate:"gte=0"`
	UnitPrice          decimal.Decimal `json:"unit_price" validate:"gte=0"`
	UnitCost           decimal.Decimal `json:"unit_cost" validate:"gte=0"`
	InventoryAccountID int64           `json:"inventory_account_id,omitempty"`
	COGSAccountID      int64           `json:"cogs_account_id,omitempty"`
}

// SalesInvoice records a credit sale to a customer.
type SalesInvoice struct {
	Header
	CustomerID          int64           `json:"customer_id" validate:"required,gt=0"`
	ReceivableAccountID int64           `json:"receivable_account_id,omitempty"`
	RevenueAccountID    int64           `json:"revenue_account_id,omitempty"`
	SubTotal            decimal.Decimal `json:"sub_total" validate:"gte=0"`
	TaxTotal            decimal.Decimal `json:"tax_total" validate:"gte=0"`
	GrandTotal          decimal.Decimal `json:"grand_total" validate:"gte=0"`
	Lines               []SalesLine     `json:"lines" validate:"dive"`
}

func (SalesInvoice) Kind() Kind     { return KindSale }
func (SalesInvoice) isTransaction() {}

// PurchaseLine is one item received on a bill.
type PurchaseLine struct {
	ItemID             int64           `json:"item_id"`
	Quantity           decimal.Decimal `json:"quantity" validate:"gte=0"`
	UnitCost           decimal.Decimal `json:"unit_cost" validate:"gte=0"`
	InventoryAccountID int64           `json:"inventory_account_id,omitempty"`
}

// Amount is quantity times unit cost rounded to cents.
func (l PurchaseLine) Amount() decimal.Decimal {
	return l.Quantity.Mul(l.UnitCost).Round(2)
}

// PurchaseBill records a credit purchase from a vendor.
type PurchaseBill struct {
	Header
	VendorID         int64           `json:"vendor_id" validate:"required,gt=0"`
	PayableAccountID int64           `json:"payable_account_id,omitempty"`
	TaxTotal         decimal.Decimal `json:"tax_total" validate:"gte=0"`
	GrandTotal       decimal.Decimal `json:"grand_total" validate:"gte=0"`
	Lines            []PurchaseLine  `json:"lines" validate:"required,min=1,dive"`
}

func (PurchaseBill) Kind() Kind     { return KindPurchase }
func (PurchaseBill) isTransaction() {}

// ExpensePaymentType selects the credit side of an expense.
type ExpensePaymentType string

const (
	// ExpenseDirect is paid from cash or bank.
	ExpenseDirect ExpensePaymentType = "DIRECT"
	// ExpenseIndirect is owed to the employee who paid it.
	ExpenseIndirect ExpensePaymentType = "INDIRECT"
)

// ExpenseRecord records an operating expense.
type ExpenseRecord struct {
	Header
	ExpenseAccountID int64              `json:"expense_account_id" validate:"required,gt=0"`
	PaymentType      ExpensePaymentType `json:"payment_type" validate:"required,oneof=DIRECT INDIRECT"`
	CashAccountID    int64              `json:"cash_account_id,omitempty" validate:"required_if=PaymentType DIRECT"`
	EmployeeID       int64              `json:"employee_id,omitempty"`
	Amount           decimal.Decimal    `json:"amount" validate:"gte=0"`
}

func (ExpenseRecord) Kind() Kind     { return KindExpense }
func (ExpenseRecord) isTransaction() {}

// ReceiptRecord records money received from a customer, net of withholding.
type ReceiptRecord struct {
	Header
	CustomerID          int64           `json:"customer_id" validate:"required,gt=0"`
	BankAccountID       int64           `json:"bank_account_id" validate:"required,gt=0"`
	ReceivableAccountID int64           `json:"receivable_account_id,omitempty"`
	GrossAmount         decimal.Decimal `json:"gross_amount" validate:"gte=0"`
	WHTAmount           decimal.Decimal `json:"wht_amount" validate:"gte=0"`
	NetAmount           decimal.Decimal `json:"net_amount" validate:"gte=0"`
}

func (ReceiptRecord) Kind() Kind     { return KindReceipt }
func (ReceiptRecord) isTransaction() {}

// PaymentRecord records money paid to a vendor, net of withholding.
type PaymentRecord struct {
	Header
	VendorID         int64           `json:"vendor_id" validate:"required,gt=0"`
	BankAccountID    int64           `json:"bank_account_id" validate:"required,gt=0"`
	PayableAccountID int64           `json:"payable_account_id,omitempty"`
	GrossAmount      decimal.Decimal `json:"gross_amount" validate:"gte=0"`
	WHTAmount        decimal.Decimal `json:"wht_amount" validate:"gte=0"`
	NetAmount        decimal.Decimal `json:"net_amount" validate:"gte=0"`
}

func (PaymentRecord) Kind() Kind     { return KindPayment }
func (PaymentRecord) isTransaction() {}

// JournalEntry is one user-entered line of a journal voucher.
type JournalEntry struct {
	AccountID int64           `json:"account_id" validate:"required,gt=0"`
	Debit     decimal.Decimal `json:"debit" validate:"gte=0"`
	Credit    decimal.Decimal `json:"credit" validate:"gte=0"`
	PartnerID int64           `json:"partner_id,omitempty"`
	Memo      string          `json:"memo,omitempty"`
}

// JournalVoucher carries manual double entries.
type JournalVoucher struct {
	Header
	Entries []JournalEntry `json:"entries" validate:"required,min=2,dive"`
}

func (JournalVoucher) Kind() Kind     { return KindJournal }
func (JournalVoucher) isTransaction() {}

// ContraVoucher moves funds between two of the organization's own accounts.
type ContraVoucher struct {
	Header
	FromAccountID int64           `json:"from_account_id" validate:"required,gt=0"`
	ToAccountID   int64           `json:"to_account_id" validate:"required,gt=0,nefield=FromAccountID"`
	Amount        decimal.Decimal `json:"amount" validate:"gte=0"`
}

func (ContraVoucher) Kind() Kind     { return KindContra }
func (ContraVoucher) isTransaction() {}

// NoteType distinguishes customer credit notes from vendor debit notes.
type NoteType string

const (
	// CreditNote reduces a customer's receivable.
	CreditNote NoteType = "CREDIT_NOTE"
	// DebitNote reduces a vendor's payable.
	DebitNote NoteType = "DEBIT_NOTE"
)

// DebitCreditNote adjusts a partner's balance after invoicing.
type DebitCreditNote struct {
	Header
	NoteType         NoteType        `json:"note_type" validate:"required,oneof=CREDIT_NOTE DEBIT_NOTE"`
	PartnerID        int64           `json:"partner_id" validate:"required,gt=0"`
	ControlAccountID int64           `json:"control_account_id,omitempty"`
	OffsetAccountID  int64           `json:"offset_account_id,omitempty"`
	Amount           decimal.Decimal `json:"amount" validate:"gte=0"`
	TaxAmount        decimal.Decimal `json:"tax_amount" validate:"gte=0"`
}

func (DebitCreditNote) Kind() Kind     { return KindNote }
func (DebitCreditNote) isTransaction() {}

// Total is the amount including tax.
func (n DebitCreditNote) Total() decimal.Decimal {
	return n.Amount.Add(n.TaxAmount)
}

// Amount returns the headline value of a transaction as shown in registers.
func Amount(txn Transaction) decimal.Decimal {
	switch t := txn.(type) {
	case SalesInvoice:
		return t.GrandTotal
	case PurchaseBill:
		return t.GrandTotal
	case ExpenseRecord:
		return t.Amount
	case ReceiptRecord:
		return t.GrossAmount
	case PaymentRecord:
		return t.GrossAmount
	case JournalVoucher:
		total := decimal.Zero
		for _, e := range t.Entries {
			total = total.Add(e.Debit)
		}
		return total
	case ContraVoucher:
		return t.Amount
	case DebitCreditNote:
		return t.Total()
	}
	return decimal.Zero
}

// PartnerOf returns the customer or vendor a transaction belongs to, if any.
func PartnerOf(txn Transaction) int64 {
	switch t := txn.(type) {
	case SalesInvoice:
		return t.CustomerID
	case PurchaseBill:
		return t.VendorID
	case ReceiptRecord:
		return t.CustomerID
	case PaymentRecord:
		return t.VendorID
	case DebitCreditNote:
		return t.PartnerID
	}
	return 0
}

// WithID returns a copy of txn carrying id.
func WithID(txn Transaction, id uuid.UUID) Transaction {
	switch t := txn.(type) {
	case SalesInvoice:
		t.ID = id
		return t
	case PurchaseBill:
		t.ID = id
		return t
	case ExpenseRecord:
		t.ID = id
		return t
	case ReceiptRecord:
		t.ID = id
		return t
	case PaymentRecord:
		t.ID = id
		return t
	case JournalVoucher:
		t.ID = id
		return t
	case ContraVoucher:
		t.ID = id
		return t
	case DebitCreditNote:
		t.ID = id
		return t
	}
	return txn
}
