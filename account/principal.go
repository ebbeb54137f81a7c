package account

import "socialblog/models"

// Principal is whoever is making a request: an authenticated user or nobody.
// The zero value is anonymous.
type Principal struct {
	user *models.User
}

func Anonymous() Principal {
	return Principal{}
}

func Authenticated(user *models.User) Principal {
	return Principal{user: user}
}

func (p Principal) IsAnonymous() bool {
	return p.user == nil
}

// User returns the authenticated user, or false for an anonymous principal.
func (p Principal) User() (*models.User, bool) {
	return p.user, p.user != nil
}

// Can is false for every permission when anonymous.
func (p Principal) Can(perm models.Permission) bool {
	if p.user == nil {
		return false
	}
	return p.user.Can(perm)
}

func (p Principal) IsAdministrator() bool {
	return p.Can(models.PermAdministrator)
}
