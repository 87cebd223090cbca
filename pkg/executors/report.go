package executors

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/yurifrl/budgetu/pkg/reconcile"
)

// Money formats amounts with two decimals, English digit grouping and the
// ISO code of the ledger currency.
type Money struct {
	unit    currency.Unit
	printer *message.Printer
}

func NewMoney(unit currency.Unit) Money {
	return Money{unit: unit, printer: message.NewPrinter(language.English)}
}

func (m Money) Format(amount float64) string {
	return m.printer.Sprint(number.Decimal(amount, number.MinFractionDigits(2), number.MaxFractionDigits(2))) + " " + m.unit.String()
}

func (m Money) FormatDecimal(d decimal.Decimal) string {
	return m.Format(d.Round(2).InexactFloat64())
}

var (
	syncedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))  // gray
	addedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10")) // green
	duplicateStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")) // yellow
)

func statusMark(s reconcile.Status) string {
	switch s {
	case reconcile.Synced:
		return syncedStyle.Render("=")
	case reconcile.Duplicate:
		return duplicateStyle.Render("~")
	default:
		return addedStyle.Render("+")
	}
}

// Render prints a preview as a table followed by a one-line plan summary.
func Render(w io.Writer, pv *Preview, money Money) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(pv.Source)
	t.AppendHeader(table.Row{"", "Row", "Date", "Description", "Category", "Type", "Status", "Amount"})

	for _, entry := range pv.Report.Items {
		tx := entry.Local
		t.AppendRow(table.Row{
			statusMark(entry.Status),
			tx.Row + 1,
			tx.Date,
			text.Trim(tx.Description, 40),
			tx.Category,
			tx.Type,
			tx.Status,
			money.Format(tx.SignedAmount()),
		})
	}

	totals := pv.Result.Totals()
	t.AppendSeparator()
	t.AppendFooter(table.Row{"", "", "", "Income", "", "", "", money.FormatDecimal(totals.Income)})
	t.AppendFooter(table.Row{"", "", "", "Expense", "", "", "", money.FormatDecimal(totals.Expense.Neg())})
	t.AppendFooter(table.Row{"", "", "", "Net", "", "", "", money.FormatDecimal(totals.Net)})

	t.SetStyle(table.StyleRounded)
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 8, Align: text.AlignRight, AlignFooter: text.AlignRight},
	})
	t.Render()

	for _, r := range pv.Result.Rejected {
		fmt.Fprintf(w, "skipped row %d: %s\n", r.Row+1, r.Reason)
	}
	for _, warn := range pv.Result.Warnings {
		fmt.Fprintf(w, "warning row %d: %s (%q)\n", warn.Row+1, warn.Kind, warn.Value)
	}

	r := pv.Report
	switch {
	case len(r.Items) == 0:
		fmt.Fprintf(w, "\nPlan: no importable rows, %d skipped\n", pv.Result.Skipped())
	case r.MissingCount() == 0:
		fmt.Fprintf(w, "\nPlan: All %d transaction(s) are in sync\n", r.InSyncCount())
	default:
		fmt.Fprintf(w, "\nPlan: %d transaction(s) will be added, %d already in sync, %d duplicate(s), %d skipped\n",
			r.MissingCount(), r.InSyncCount(), r.DuplicateCount(), pv.Result.Skipped())
	}
}
