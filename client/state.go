package client

import (
	auth "github.com/goliatone/go-auth-tokens"
)

// State is either Anonymous or Authenticated
type State interface {
	IsAuthenticated() bool
	state()
}

// Anonymous no identity and no token
type Anonymous struct{}

func (Anonymous) IsAuthenticated() bool { return false }
func (Anonymous) state()                {}

// Authenticated holds the identity and the token bound to it. Both are
// always set together.
type Authenticated struct {
	User  auth.UserResource
	Token string
}

func (Authenticated) IsAuthenticated() bool { return true }
func (Authenticated) state()                {}
