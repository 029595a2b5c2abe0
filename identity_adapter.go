package auth

// UserIdentity adapts a User into the Identity interface.
type UserIdentity struct {
	user *User
}

// NewIdentityFromUser returns an Identity adapter for the provided user.
func NewIdentityFromUser(user *User) Identity {
	if user == nil {
		return nil
	}
	return UserIdentity{user: user}
}

// ID returns the user's ID as a string.
func (u UserIdentity) ID() string {
	if u.user == nil {
		return ""
	}
	return u.user.ID.String()
}

// Name returns the user's display name.
func (u UserIdentity) Name() string {
	if u.user == nil {
		return ""
	}
	return u.user.Name
}

// Email returns the user's email address.
func (u UserIdentity) Email() string {
	if u.user == nil {
		return ""
	}
	return u.user.Email
}

// Record exposes the underlying user row.
func (u UserIdentity) Record() *User {
	return u.user
}

type recordIdentity interface {
	Record() *User
}

// UserFromIdentity returns the backing User when the identity carries one
func UserFromIdentity(identity Identity) (*User, bool) {
	if identity == nil {
		return nil, false
	}
	ri, ok := identity.(recordIdentity)
	if !ok || ri.Record() == nil {
		return nil, false
	}
	return ri.Record(), true
}
