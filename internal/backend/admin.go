package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
)

// AdminUser is one row of the staff user list.
type AdminUser struct {
	ID         ID     `json:"id"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	IsStaff    bool   `json:"is_staff"`
	IsActive   bool   `json:"is_active"`
	DateJoined string `json:"date_joined"`
}

// AuditLog is one recorded staff or system action.
type AuditLog struct {
	ID         ID              `json:"id"`
	CreatedAt  string          `json:"created_at"`
	ActorEmail string          `json:"actor_email"`
	Action     string          `json:"action"`
	EntityType string          `json:"entity_type"`
	EntityID   ID              `json:"entity_id"`
	Details    json.RawMessage `json:"details"`
}

// Pagination describes the page returned by a paged admin listing.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// AdminOverview returns the staff dashboard counters as loosely typed JSON.
func (c *Client) AdminOverview(ctx context.Context) (map[string]json.RawMessage, error) {
	data := map[string]json.RawMessage{}
	err := c.do(ctx, http.MethodGet, "admin/overview/", nil, &data)
	return data, err
}

// AdminUsers lists accounts, optionally filtered by a name or email query.
func (c *Client) AdminUsers(ctx context.Context, query string, page int) ([]AdminUser, Pagination, error) {
	var data struct {
		Users      []AdminUser `json:"users"`
		Pagination Pagination  `json:"pagination"`
	}
	params := pageParams(page)
	if query != "" {
		params.Set("q", query)
	}
	err := c.do(ctx, http.MethodGet, "admin/users/?"+params.Encode(), nil, &data)
	return data.Users, data.Pagination, err
}

// AdminHealth returns the backend health report as loosely typed JSON.
func (c *Client) AdminHealth(ctx context.Context) (map[string]json.RawMessage, error) {
	data := map[string]json.RawMessage{}
	err := c.do(ctx, http.MethodGet, "admin/health/", nil, &data)
	return data, err
}

// AdminAuditLogs returns one page of the audit trail, newest first.
func (c *Client) AdminAuditLogs(ctx context.Context, page int) ([]AuditLog, Pagination, error) {
	var data struct {
		Logs       []AuditLog `json:"logs"`
		Pagination Pagination `json:"pagination"`
	}
	err := c.do(ctx, http.MethodGet, "admin/audit-logs/?"+pageParams(page).Encode(), nil, &data)
	return data.Logs, data.Pagination, err
}

func pageParams(page int) url.Values {
	if page < 1 {
		page = 1
	}
	return url.Values{"page": {strconv.Itoa(page)}, "page_size": {"20"}}
}
