package models

// Permission is a capability bit. A role's mask is the OR of its flags.
type Permission int

const (
	PermFollow           Permission = 0x01
	PermComment          Permission = 0x02
	PermWriteArticles    Permission = 0x04
	PermModerateComments Permission = 0x08
	PermAdministrator    Permission = 0x80
)

// AllPermissions is the mask given to the administrator role.
const AllPermissions Permission = 0xff

// Role names seeded at startup.
const (
	RoleUser          = "User"
	RoleModerator     = "Moderator"
	RoleAdministrator = "Administrator"
)

// RoleDefinition describes one seeded role.
type RoleDefinition struct {
	Name        string
	Permissions Permission
	Default     bool
}

// DefaultRoles lists the roles every installation has.
var DefaultRoles = []RoleDefinition{
	{Name: RoleUser, Permissions: PermFollow | PermComment | PermWriteArticles, Default: true},
	{Name: RoleModerator, Permissions: PermFollow | PermComment | PermWriteArticles | PermModerateComments},
	{Name: RoleAdministrator, Permissions: AllPermissions},
}

func (p Permission) String() string {
	switch p {
	case PermFollow:
		return "follow"
	case PermComment:
		return "comment"
	case PermWriteArticles:
		return "write_articles"
	case PermModerateComments:
		return "moderate_comments"
	case PermAdministrator:
		return "administrator"
	}
	return "permissions"
}
