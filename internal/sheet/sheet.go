// Package sheet mirrors completed sales to an external spreadsheet endpoint.
// Every call sits outside the checkout transaction: a failed append is logged
// by the caller and never affects the sale.
package sheet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"retailpos/backend/internal/domain"
)

// headerRow defines the 9 columns of the mirror sheet. Discount, Tax and
// Notes are always zero/empty today; the columns stay for sheet
// compatibility.
var headerRow = []string{
	"Date & Time", "Sale ID", "Cashier Email", "Total Amount",
	"Payment Method", "Items Details", "Discount", "Tax", "Notes",
}

type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
	loc      *time.Location
}

func New(endpoint string, apiKey string, loc *time.Location) *Client {
	if loc == nil {
		loc = time.Local
	}
	return &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		apiKey:   apiKey,
		http:     &http.Client{Timeout: 10 * time.Second},
		loc:      loc,
	}
}

// AppendSale posts one formatted row for the sale.
func (c *Client) AppendSale(ctx context.Context, sale domain.Sale, cashierEmail string) error {
	row := []string{
		sale.CreatedAt.In(c.loc).Format("01/02/2006 03:04:05 PM"),
		sale.ID,
		cashierEmail,
		sale.TotalAmount.StringFixed(2),
		sale.PaymentMethod,
		itemsSummary(sale.CartDetails),
		"0",
		"0",
		"",
	}
	return c.post(ctx, "append", [][]string{row})
}

// InitHeaders rewrites the header row.
func (c *Client) InitHeaders(ctx context.Context) error {
	return c.post(ctx, "init", [][]string{headerRow})
}

// TestConnection checks that the endpoint is reachable and accepts the key.
func (c *Client) TestConnection(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return err
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("spreadsheet endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

func itemsSummary(lines []domain.CartItem) string {
	parts := make([]string, 0, len(lines))
	for _, line := range lines {
		parts = append(parts, fmt.Sprintf("%s (%dx %s)", line.Name, line.Quantity, line.Price.StringFixed(2)))
	}
	return strings.Join(parts, ", ")
}

type sheetPayload struct {
	Action string     `json:"action"`
	Rows   [][]string `json:"rows"`
}

func (c *Client) post(ctx context.Context, action string, rows [][]string) error {
	body, err := json.Marshal(sheetPayload{Action: action, Rows: rows})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("spreadsheet endpoint returned status %d", resp.StatusCode)
	}
	return nil
}
