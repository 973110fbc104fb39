package posting

import (
	"encoding/json"
	"fmt"
)

type envelope struct {
	Kind Kind            `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// MarshalTransaction encodes txn as {"kind": ..., "data": ...}.
func MarshalTransaction(txn Transaction) ([]byte, error) {
	if txn == nil {
		return nil, fmt.Errorf("posting: marshal nil transaction")
	}
	data, err := json.Marshal(txn)
	if err != nil {
		return nil, fmt.Errorf("posting: marshal %s: %w", txn.Kind(), err)
	}
	return json.Marshal(envelope{Kind: txn.Kind(), Data: data})
}

// UnmarshalTransaction decodes the kind-tagged form produced by MarshalTransaction.
func UnmarshalTransaction(raw []byte) (Transaction, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("posting: decode envelope: %w", err)
	}
	return DecodeKind(env.Kind, env.Data)
}

// DecodeKind decodes data into the variant named by kind.
func DecodeKind(kind Kind, data []byte) (Transaction, error) {
	var (
		txn Transaction
		err error
	)
	switch kind {
	case KindSale:
		txn, err = decodeAs[SalesInvoice](data)
	case KindPurchase:
		txn, err = decodeAs[PurchaseBill](data)
	case KindExpense:
		txn, err = decodeAs[ExpenseRecord](data)
	case KindReceipt:
		txn, err = decodeAs[ReceiptRecord](data)
	case KindPayment:
		txn, err = decodeAs[PaymentRecord](data)
	case KindJournal:
		txn, err = decodeAs[JournalVoucher](data)
	case KindContra:
		txn, err = decodeAs[ContraVoucher](data)
	case KindNote:
		txn, err = decodeAs[DebitCreditNote](data)
	default:
		return nil, fmt.Errorf("posting: unknown transaction kind %q", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("posting: decode %s: %w", kind, err)
	}
	return txn, nil
}

func decodeAs[T Transaction](data []byte) (Transaction, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// Transactions is a JSON-friendly list of kind-tagged transactions.
type Transactions []Transaction

// MarshalJSON encodes each element with MarshalTransaction.
func (ts Transactions) MarshalJSON() ([]byte, error) {
	out := make([]json.RawMessage, 0, len(ts))
	for _, txn := range ts {
		raw, err := MarshalTransaction(txn)
		if err != nil {
			return nil, err
		}
		out = append(out, raw)
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes a list of kind-tagged transactions.
func (ts *Transactions) UnmarshalJSON(raw []byte) error {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return fmt.Errorf("posting: decode transactions: %w", err)
	}
	out := make(Transactions, 0, len(items))
	for idx, item := range items {
		txn, err := UnmarshalTransaction(item)
		if err != nil {
			return fmt.Errorf("posting: transaction %d: %w", idx, err)
		}
		out = append(out, txn)
	}
	*ts = out
	return nil
}
