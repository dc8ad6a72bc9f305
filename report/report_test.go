package report

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/odyssey-erp/custody/internal/custody"
)

func sampleReceipt() custody.Receipt {
	posting := time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC)
	return custody.Receipt{
		Name:         "CR-2026-00007",
		Employee:     "EMP-001",
		EmployeeName: "Rina Putri",
		Company:      "ACME",
		PostingDate:  &posting,
		DocStatus:    custody.DocStatusSubmitted,
		Remarks:      "<b>handover</b>",
		Items: []custody.Item{
			{Idx: 1, ItemCode: "LAPTOP", ItemName: "Laptop 14", Asset: "AST-0001", Qty: decimal.NewFromInt(1), UOM: "Nos",
				Rate: decimal.NewFromInt(15000000), Amount: decimal.NewFromInt(15000000)},
			{Idx: 2, ItemCode: "MOUSE", ItemName: "Wireless Mouse", Qty: decimal.RequireFromString("2.5"), UOM: "Nos",
				Rate: decimal.NewFromInt(100), Amount: decimal.NewFromInt(250)},
		},
	}
}

func TestReceiptHTML(t *testing.T) {
	p := NewReceiptPrinter(NewClient("http://unused"), language.English)
	html, err := p.HTML(sampleReceipt())
	require.NoError(t, err)
	out := string(html)
	require.Contains(t, out, "Custody Receipt CR-2026-00007")
	require.Contains(t, out, "Submitted")
	require.Contains(t, out, "17 Oct 2026")
	require.Contains(t, out, "15,000,000")
	require.Contains(t, out, "2.50")
	require.Contains(t, out, "Laptop 14")
	require.NotContains(t, out, "<b>handover</b>", "remarks are escaped")
}

func TestRenderReceiptPostsIndexHTML(t *testing.T) {
	var gotPath, gotFile, gotBody, gotWidth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f, hdr, err := r.FormFile("files")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer f.Close()
		body, _ := io.ReadAll(f)
		gotFile, gotBody, gotWidth = hdr.Filename, string(body), r.FormValue("paperWidth")
		_, _ = w.Write([]byte("%PDF-1.7"))
	}))
	defer srv.Close()

	p := NewReceiptPrinter(NewClient(srv.URL+"/"), language.English)
	pdf, err := p.RenderReceipt(context.Background(), sampleReceipt())
	require.NoError(t, err)
	require.Equal(t, "/forms/chromium/convert/html", gotPath)
	require.Equal(t, "index.html", gotFile)
	require.Equal(t, "8.27", gotWidth)
	require.Contains(t, gotBody, "CR-2026-00007")
	require.True(t, strings.HasPrefix(string(pdf), "%PDF"))
}

func TestRenderHTMLSurfacesFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "chromium crashed", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).RenderHTML(context.Background(), []byte("<html></html>"), A4)
	require.Error(t, err)
	require.Contains(t, err.Error(), "503")
	require.Error(t, NewClient(srv.URL).Ping(context.Background()))
}
