package reporter

import (
	"fmt"
	"io"
	"strategy-desk/internal/models"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

func newTable(w io.Writer, title string) table.Writer {
	t := table.NewWriter()
	if w != nil {
		t.SetOutputMirror(w)
	}
	t.SetTitle(title)
	t.SetStyle(table.StyleLight)
	return t
}

// StrategyTable renders strategy rows with their running flag. When w is set the table is also
// written to it.
func StrategyTable(w io.Writer, records []models.StrategyRecord, active map[string]bool) string {
	t := newTable(w, "Strategies")
	t.AppendHeader(table.Row{"ID", "Name", "Owner", "Exchange", "Pair", "Strategy", "TF", "Investment", "Risk", "TP %", "SL %", "Status"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Investment", Align: text.AlignRight},
		{Name: "Risk", Align: text.AlignRight},
	})

	running := 0
	for _, r := range records {
		status := "Stopped"
		if active[r.ID] {
			status = "Running"
			running++
		}
		t.AppendRow(table.Row{
			r.ID, r.Name, r.Owner, r.Exchange, r.TradingPair, r.Strategy, r.Timeframe,
			fmt.Sprintf("%.2f USDT", r.InitialInvestment), r.RiskLevel,
			r.TakeProfitPercentage, r.StopLossPercentage, status,
		})
	}
	t.AppendFooter(table.Row{"", "", "", "", "", "", "", "", "", "", "Running", fmt.Sprintf("%d/%d", running, len(records))})
	return t.Render()
}

// PlanTable renders the pricing tiers for the billing cycle and marks the current one.
func PlanTable(w io.Writer, plans []models.SubscriptionPlan, currentID string, cycle models.BillingCycle) string {
	t := newTable(w, fmt.Sprintf("Plans (%s)", cycle))
	t.AppendHeader(table.Row{"Plan", "Price", "Strategies", "Exchanges", ""})
	for _, p := range plans {
		strategies := fmt.Sprint(p.MaxStrategies)
		if p.MaxStrategies < 0 {
			strategies = "Unlimited"
		}
		mark := ""
		switch {
		case p.ID == currentID:
			mark = "Current"
		case p.Popular:
			mark = "Popular"
		}
		t.AppendRow(table.Row{p.Name, p.PriceFor(cycle), strategies, p.MaxExchanges, mark})
	}
	return t.Render()
}

// ConnectionTable renders API connections. Keys are redacted and secrets masked.
func ConnectionTable(w io.Writer, conns []models.APIConnection) string {
	t := newTable(w, "API Connections")
	t.AppendHeader(table.Row{"ID", "Exchange", "API Key", "Secret", "Status", "Added"})
	for _, c := range conns {
		t.AppendRow(table.Row{c.ID, c.Exchange, c.RedactedKey(), c.MaskedSecret(), c.Status, c.AddedOn})
	}
	return t.Render()
}
