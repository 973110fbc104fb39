package reports

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-gl/internal/accounting/posting"
	"github.com/odyssey-erp/odyssey-gl/internal/accounting/shared"
)

// DayBookRow is one transaction as entered.
type DayBookRow struct {
	TransactionID uuid.UUID       `json:"transaction_id"`
	Date          time.Time       `json:"date"`
	Ref           string          `json:"ref"`
	Kind          posting.Kind    `json:"kind"`
	Memo          string          `json:"memo,omitempty"`
	PartnerID     int64           `json:"partner_id,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
}

// DayBook is the chronological register of a range.
type DayBook struct {
	Range shared.DateRange `json:"range"`
	Rows  []DayBookRow     `json:"rows"`
}

// BuildDayBook lists every transaction dated inside period, unaggregated,
// ordered by date then reference.
func BuildDayBook(txns []posting.Transaction, period shared.DateRange) DayBook {
	rows := make([]DayBookRow, 0, len(txns))
	for _, txn := range txns {
		if txn == nil {
			continue
		}
		h := txn.Head()
		if !period.Contains(h.Date) {
			continue
		}
		rows = append(rows, DayBookRow{
			TransactionID: h.ID,
			Date:          h.Date,
			Ref:           h.Ref,
			Kind:          txn.Kind(),
			Memo:          h.Memo,
			PartnerID:     posting.PartnerOf(txn),
			Amount:        posting.Amount(txn),
		})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		di, dj := shared.Day(rows[i].Date), shared.Day(rows[j].Date)
		if !di.Equal(dj) {
			return di.Before(dj)
		}
		if rows[i].Ref != rows[j].Ref {
			return rows[i].Ref < rows[j].Ref
		}
		return rows[i].TransactionID.String() < rows[j].TransactionID.String()
	})
	return DayBook{Range: period, Rows: rows}
}
