// Package models contains data structures for the application's domain models.
package models

// Principal is an authenticated identity supplied by the external identity
// provider. It is read-only to this core.
type Principal struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Avatar string `json:"avatar,omitempty"`
}
