package posting

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
)

// Posting is one signed effect on one leaf account: debit positive, credit negative.
// PartnerID tags postings that belong to a customer or vendor subledger.
type Posting struct {
	AccountID int64           `json:"account_id"`
	Amount    decimal.Decimal `json:"amount"`
	PartnerID int64           `json:"partner_id,omitempty"`
}

// Debit returns the positive part of the amount.
func (p Posting) Debit() decimal.Decimal {
	if p.Amount.IsPositive() {
		return p.Amount
	}
	return decimal.Zero
}

// Credit returns the magnitude of the negative part of the amount.
func (p Posting) Credit() decimal.Decimal {
	if p.Amount.IsNegative() {
		return p.Amount.Neg()
	}
	return decimal.Zero
}

// PostingsFor maps one transaction to its balanced postings. Zero-amount
// effects are omitted. It never consults the chart; account existence is the
// aggregator's concern.
func PostingsFor(txn Transaction, controls ControlAccounts) ([]Posting, error) {
	if txn == nil {
		return nil, &shared.MalformedTransactionError{Reason: "nil transaction"}
	}
	b := &builder{txn: txn}
	switch t := txn.(type) {
	case SalesInvoice:
		saleRule(b, t, controls)
	case PurchaseBill:
		purchaseRule(b, t, controls)
	case ExpenseRecord:
		expenseRule(b, t, controls)
	case ReceiptRecord:
		receiptRule(b, t, controls)
	case PaymentRecord:
		paymentRule(b, t, controls)
	case JournalVoucher:
		journalRule(b, t)
	case ContraVoucher:
		contraRule(b, t)
	case DebitCreditNote:
		noteRule(b, t, controls)
	default:
		b.fail(0, fmt.Sprintf("no posting rule for %T", txn))
	}
	return b.result()
}

func saleRule(b *builder, t SalesInvoice, c ControlAccounts) {
	if !t.GrandTotal.Equal(t.SubTotal.Add(t.TaxTotal)) {
		b.fail(0, fmt.Sprintf("grand total %s != sub total %s + tax %s", t.GrandTotal, t.SubTotal, t.TaxTotal))
		return
	}
	receivable := pick(t.ReceivableAccountID, c.Receivable)
	b.add(receivable, t.GrandTotal, t.CustomerID)
	b.add(pick(t.RevenueAccountID, c.Revenue), t.SubTotal.Neg(), 0)
	b.add(c.TaxPayable, t.TaxTotal.Neg(), 0)
	for _, line := range t.Lines {
		cost := line.Quantity.Mul(line.UnitCost).Round(2)
		b.add(pick(line.COGSAccountID, c.COGS), cost, 0)
		b.add(pick(line.InventoryAccountID, c.Inventory), cost.Neg(), 0)
	}
}

func purchaseRule(b *builder, t PurchaseBill, c ControlAccounts) {
	lines := decimal.Zero
	for _, line := range t.Lines {
		amount := line.Amount()
		lines = lines.Add(amount)
		b.add(pick(line.InventoryAccountID, c.Inventory), amount, 0)
	}
	if !t.GrandTotal.Equal(lines.Add(t.TaxTotal)) {
		b.fail(0, fmt.Sprintf("grand total %s != lines %s + tax %s", t.GrandTotal, lines, t.TaxTotal))
		return
	}
	b.add(c.TaxReceivable, t.TaxTotal, 0)
	b.add(pick(t.PayableAccountID, c.Payable), t.GrandTotal.Neg(), t.VendorID)
}

func expenseRule(b *builder, t ExpenseRecord, c ControlAccounts) {
	b.add(t.ExpenseAccountID, t.Amount, 0)
	switch t.PaymentType {
	case ExpenseDirect:
		b.add(t.CashAccountID, t.Amount.Neg(), 0)
	case ExpenseIndirect:
		b.add(c.EmployeePayable, t.Amount.Neg(), 0)
	default:
		b.fail(0, fmt.Sprintf("unknown expense payment type %q", t.PaymentType))
	}
}

// receiptRule debits withheld tax to WHTExpense: the customer withheld it, so
// the organization bears it as a cost or claimable prepaid tax.
func receiptRule(b *builder, t ReceiptRecord, c ControlAccounts) {
	if !t.GrossAmount.Equal(t.NetAmount.Add(t.WHTAmount)) {
		b.fail(0, fmt.Sprintf("gross %s != net %s + wht %s", t.GrossAmount, t.NetAmount, t.WHTAmount))
		return
	}
	b.add(t.BankAccountID, t.NetAmount, 0)
	b.add(c.WHTExpense, t.WHTAmount, 0)
	b.add(pick(t.ReceivableAccountID, c.Receivable), t.GrossAmount.Neg(), t.CustomerID)
}

// paymentRule credits withheld tax to WHTPayable: the organization withheld
// it and owes it to the tax authority.
func paymentRule(b *builder, t PaymentRecord, c ControlAccounts) {
	if !t.GrossAmount.Equal(t.NetAmount.Add(t.WHTAmount)) {
		b.fail(0, fmt.Sprintf("gross %s != net %s + wht %s", t.GrossAmount, t.NetAmount, t.WHTAmount))
		return
	}
	b.add(pick(t.PayableAccountID, c.Payable), t.GrossAmount, t.VendorID)
	b.add(t.BankAccountID, t.NetAmount.Neg(), 0)
	b.add(c.WHTPayable, t.WHTAmount.Neg(), 0)
}

func journalRule(b *builder, t JournalVoucher) {
	if err := checkEntries(t.Entries); err != nil {
		b.failErr(0, err)
		return
	}
	for _, e := range t.Entries {
		b.add(e.AccountID, e.Debit.Sub(e.Credit), e.PartnerID)
	}
}

func contraRule(b *builder, t ContraVoucher) {
	if t.FromAccountID == t.ToAccountID {
		b.fail(t.FromAccountID, "contra from and to accounts are the same")
		return
	}
	b.add(t.ToAccountID, t.Amount, 0)
	b.add(t.FromAccountID, t.Amount.Neg(), 0)
}

func noteRule(b *builder, t DebitCreditNote, c ControlAccounts) {
	total := t.Total()
	switch t.NoteType {
	case CreditNote:
		b.add(pick(t.ControlAccountID, c.Receivable), total.Neg(), t.PartnerID)
		b.add(pick(t.OffsetAccountID, c.Revenue), t.Amount, 0)
		b.add(c.TaxPayable, t.TaxAmount, 0)
	case DebitNote:
		b.add(pick(t.ControlAccountID, c.Payable), total, t.PartnerID)
		b.add(pick(t.OffsetAccountID, c.Inventory), t.Amount.Neg(), 0)
		b.add(c.TaxReceivable, t.TaxAmount.Neg(), 0)
	default:
		b.fail(0, fmt.Sprintf("unknown note type %q", t.NoteType))
	}
}

func pick(override, fallback int64) int64 {
	if override != 0 {
		return override
	}
	return fallback
}

type builder struct {
	txn Transaction
	out []Posting
	err error
}

func (b *builder) add(accountID int64, amount decimal.Decimal, partnerID int64) {
	if b.err != nil || amount.IsZero() {
		return
	}
	if accountID == 0 {
		b.fail(0, "posting has no account")
		return
	}
	b.out = append(b.out, Posting{AccountID: accountID, Amount: amount, PartnerID: partnerID})
}

func (b *builder) fail(accountID int64, reason string) {
	if b.err != nil {
		return
	}
	b.err = malformed(b.txn, accountID, reason, nil)
}

func (b *builder) failErr(accountID int64, err error) {
	if b.err != nil {
		return
	}
	b.err = malformed(b.txn, accountID, "", err)
}

func (b *builder) result() ([]Posting, error) {
	if b.err != nil {
		return nil, b.err
	}
	total := decimal.Zero
	for _, p := range b.out {
		total = total.Add(p.Amount)
	}
	if !total.IsZero() {
		return nil, malformed(b.txn, 0, fmt.Sprintf("postings do not balance (residual %s)", total), shared.ErrUnbalanced)
	}
	return b.out, nil
}

func malformed(txn Transaction, accountID int64, reason string, err error) *shared.MalformedTransactionError {
	e := &shared.MalformedTransactionError{AccountID: accountID, Reason: reason, Err: err}
	if txn != nil {
		h := txn.Head()
		e.TransactionID = h.ID
		e.Ref = h.Ref
		e.Kind = string(txn.Kind())
	}
	return e
}
