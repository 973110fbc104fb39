package reports

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// FormatAmount renders v with two decimals and the grouping rules of tag.
func FormatAmount(tag language.Tag, v decimal.Decimal) string {
	p := message.NewPrinter(tag)
	return p.Sprint(number.Decimal(v.Round(2).InexactFloat64(), number.Scale(2)))
}

// FormatBalance renders a running balance as magnitude plus Dr/Cr.
func FormatBalance(tag language.Tag, v decimal.Decimal) string {
	return FormatAmount(tag, v.Abs()) + " " + string(SideOf(v))
}
