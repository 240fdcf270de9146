package jwtx

import "github.com/aussiebroadwan/purse/pkg/idx"

// NewJTI returns a unique, sortable token identifier.
func NewJTI() string {
	return idx.New().String()
}
