package report

import (
	"bytes"
	"context"
	"html/template"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/odyssey-erp/custody/internal/custody"
)

var receiptTemplate = template.Must(template.New("custody_receipt").Funcs(template.FuncMap{
	"date": func(t *time.Time) string {
		if t == nil || t.IsZero() {
			return "-"
		}
		return t.Format("02 Jan 2006")
	},
}).Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Receipt.Name}}</title>
<style>
body { font-family: sans-serif; font-size: 11px; margin: 24px; }
h1 { font-size: 18px; margin-bottom: 4px; }
table { border-collapse: collapse; width: 100%; margin-top: 12px; }
th, td { border: 1px solid #999; padding: 4px 6px; text-align: left; }
td.num, th.num { text-align: right; }
.meta td { border: none; padding: 2px 6px; }
.status { color: #666; }
.sign { margin-top: 48px; width: 100%; }
.sign td { border: none; width: 50%; padding-top: 48px; }
</style>
</head>
<body>
<h1>Custody Receipt {{.Receipt.Name}}</h1>
<div class="status">{{.Status}}</div>
<table class="meta">
<tr><td>Employee</td><td>{{.Receipt.Employee}} {{.Receipt.EmployeeName}}</td><td>Posting Date</td><td>{{date .Receipt.PostingDate}}</td></tr>
<tr><td>Company</td><td>{{.Receipt.Company}}</td><td>Purchase Receipt</td><td>{{.Receipt.PurchaseReceipt}}</td></tr>
<tr><td>Supplier</td><td>{{.Receipt.SupplierName}}</td><td>Purchase Date</td><td>{{date .Receipt.PurchaseDate}}</td></tr>
</table>
<table>
<thead><tr><th>#</th><th>Item</th><th>Description</th><th>Asset</th><th class="num">Qty</th><th>UOM</th><th class="num">Rate</th><th class="num">Amount</th></tr></thead>
<tbody>
{{range .Rows}}<tr><td>{{.Idx}}</td><td>{{.ItemCode}}</td><td>{{.Description}}</td><td>{{.Asset}}</td><td class="num">{{.Qty}}</td><td>{{.UOM}}</td><td class="num">{{.Rate}}</td><td class="num">{{.Amount}}</td></tr>
{{end}}</tbody>
<tfoot><tr><td colspan="4">Total</td><td class="num">{{.TotalQty}}</td><td></td><td></td><td class="num">{{.TotalAmount}}</td></tr></tfoot>
</table>
{{if .Receipt.Remarks}}<p>{{.Receipt.Remarks}}</p>{{end}}
<table class="sign"><tr><td>Handed over by</td><td>Received by {{.Receipt.EmployeeName}}</td></tr></table>
</body>
</html>`))

type printRow struct {
	Idx         int
	ItemCode    string
	Description string
	Asset       string
	Qty         string
	UOM         string
	Rate        string
	Amount      string
}

type printData struct {
	Receipt     custody.Receipt
	Status      string
	Rows        []printRow
	TotalQty    string
	TotalAmount string
}

// ReceiptPrinter renders custody receipts through Gotenberg.
type ReceiptPrinter struct {
	client  *Client
	printer *message.Printer
}

// NewReceiptPrinter builds a printer formatting numbers for lang.
func NewReceiptPrinter(client *Client, lang language.Tag) *ReceiptPrinter {
	return &ReceiptPrinter{client: client, printer: message.NewPrinter(lang)}
}

// HTML renders the print format.
func (p *ReceiptPrinter) HTML(r custody.Receipt) ([]byte, error) {
	data := printData{
		Receipt:     r,
		Status:      r.DocStatus.String(),
		TotalQty:    p.number(r.TotalQty()),
		TotalAmount: p.number(r.TotalAmount()),
	}
	for _, it := range r.Items {
		desc := it.Description
		if desc == "" {
			desc = it.ItemName
		}
		data.Rows = append(data.Rows, printRow{
			Idx:         it.Idx,
			ItemCode:    it.ItemCode,
			Description: desc,
			Asset:       it.Asset,
			Qty:         p.number(it.Qty),
			UOM:         it.UOM,
			Rate:        p.number(it.Rate),
			Amount:      p.number(it.Amount),
		})
	}
	var buf bytes.Buffer
	if err := receiptTemplate.Execute(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RenderReceipt produces the PDF for r.
func (p *ReceiptPrinter) RenderReceipt(ctx context.Context, r custody.Receipt) ([]byte, error) {
	html, err := p.HTML(r)
	if err != nil {
		return nil, err
	}
	return p.client.RenderHTML(ctx, html, A4)
}

// number prints whole values without decimals and everything else with two.
func (p *ReceiptPrinter) number(v decimal.Decimal) string {
	if v.Equal(v.Truncate(0)) {
		return p.printer.Sprintf("%d", v.IntPart())
	}
	f, _ := v.Round(2).Float64()
	return p.printer.Sprintf("%.2f", f)
}
