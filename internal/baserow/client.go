// Package baserow is a small client for the Baserow REST API: list the
// tables of a database and read their rows by user field name.
package baserow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// ErrTableNotFound is returned when a named table does not exist.
var ErrTableNotFound = errors.New("baserow: table not found")

// DefaultEndpoint is the hosted Baserow API.
const DefaultEndpoint = "https://api.baserow.io"

const pageSize = 100

// Table is a table in a database.
type Table struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Row is one row keyed by user field name.
type Row map[string]any

// Client reads one Baserow database.
type Client struct {
	endpoint   string
	token      string
	database   int
	httpClient *http.Client

	mu     sync.Mutex
	tables []Table
}

// New creates a client for database, authenticated with a database token.
func New(endpoint, token string, database int) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Client{
		endpoint:   strings.TrimRight(endpoint, "/"),
		token:      token,
		database:   database,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// WithHTTPClient replaces the HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// Tables lists the database's tables. The list is cached until Invalidate.
func (c *Client) Tables(ctx context.Context) ([]Table, error) {
	c.mu.Lock()
	cached := c.tables
	c.mu.Unlock()
	if cached != nil {
		return cached, nil
	}

	var tables []Table
	u := fmt.Sprintf("%s/api/database/tables/database/%d/", c.endpoint, c.database)
	if err := c.get(ctx, u, &tables); err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}

	c.mu.Lock()
	c.tables = tables
	c.mu.Unlock()
	return tables, nil
}

// Invalidate drops the cached table list.
func (c *Client) Invalidate() {
	c.mu.Lock()
	c.tables = nil
	c.mu.Unlock()
}

// Rows reads every row of a table, following pagination.
func (c *Client) Rows(ctx context.Context, tableID int) ([]Row, error) {
	u := fmt.Sprintf("%s/api/database/rows/table/%d/?user_field_names=true&size=%d", c.endpoint, tableID, pageSize)

	var rows []Row
	for u != "" {
		var page struct {
			Count   int     `json:"count"`
			Next    *string `json:"next"`
			Results []Row   `json:"results"`
		}
		if err := c.get(ctx, u, &page); err != nil {
			return nil, fmt.Errorf("list rows of table %d: %w", tableID, err)
		}
		rows = append(rows, page.Results...)

		u = ""
		if page.Next != nil && *page.Next != "" {
			next, err := c.resolve(*page.Next)
			if err != nil {
				return nil, fmt.Errorf("follow next page: %w", err)
			}
			u = next
		}
	}
	return rows, nil
}

// TableRows reads a table by name.
func (c *Client) TableRows(ctx context.Context, name string) ([]Row, error) {
	tables, err := c.Tables(ctx)
	if err != nil {
		return nil, err
	}
	for _, t := range tables {
		if t.Name == name {
			return c.Rows(ctx, t.ID)
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrTableNotFound, name)
}

// resolve makes a next-page link absolute against the endpoint. Baserow
// sometimes reports its internal host, so only path and query are kept.
func (c *Client) resolve(next string) (string, error) {
	u, err := url.Parse(next)
	if err != nil {
		return "", err
	}
	return c.endpoint + u.RequestURI(), nil
}

func (c *Client) get(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned status %d", req.URL.Path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
