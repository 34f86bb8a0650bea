package card

// Authorize allows an ADMIN to act on any card and anyone else only on a
// card they own.
func Authorize(c Card, caller Caller, action string) error {
	if caller.IsAdmin() {
		return nil
	}
	return RequireOwner(c, caller.ID, action)
}

// RequireOwner checks ownership regardless of role.
func RequireOwner(c Card, callerID, action string) error {
	if callerID == "" || c.OwnerID != callerID {
		return &PermissionError{Action: action, CardID: c.ID, OwnerID: c.OwnerID, CallerID: callerID}
	}
	return nil
}

// RequireAdmin rejects non-admin callers.
func RequireAdmin(caller Caller, action, cardID string) error {
	if !caller.IsAdmin() {
		return &PermissionError{Action: action, CardID: cardID, CallerID: caller.ID}
	}
	return nil
}
