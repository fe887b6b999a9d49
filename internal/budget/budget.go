// Package budget wraps the backend's REST resources.
package budget

import (
	"net/url"
	"strconv"

	"presupuesto/internal/api"
)

// Client groups the resource wrappers over one transport.
type Client struct {
	Transactions  *Transactions
	Categories    *Categories
	Budgets       *Budgets
	Notifications *Notifications
	Dashboard     *Dashboard
	Users         *Users
}

// New creates the resource wrappers
func New(c *api.Client) *Client {
	return &Client{
		Transactions:  &Transactions{client: c},
		Categories:    &Categories{client: c},
		Budgets:       &Budgets{client: c},
		Notifications: &Notifications{client: c},
		Dashboard:     &Dashboard{client: c},
		Users:         &Users{client: c},
	}
}

// Deleted is the backend's acknowledgement of a delete
type Deleted struct {
	Message string `json:"message"`
	ID      int64  `json:"id"`
}

func idPath(base string, id int64, suffix ...string) string {
	p := base + "/" + strconv.FormatInt(id, 10)
	for _, s := range suffix {
		p += "/" + s
	}
	return p
}

func setInt(q url.Values, key string, v int64) {
	if v > 0 {
		q.Set(key, strconv.FormatInt(v, 10))
	}
}

func setString(q url.Values, key, v string) {
	if v != "" {
		q.Set(key, v)
	}
}
