package auth

// Role names. Kept as the stable identifiers of the builtin role set.
const (
	RoleSuperAdmin = "SUPER_ADMIN"
	RoleAdmin      = "ADMIN"
	RoleModerator  = "MODERATOR"
	RolePR         = "PR"
)

// Permission keys.
const (
	PermUserCreate = "USER_CREATE"
	PermUserUpdate = "USER_UPDATE"
	PermUserDelete = "USER_DELETE"
	PermUserView   = "USER_VIEW"

	PermRoleAssign = "ROLE_ASSIGN"
	PermRoleRevoke = "ROLE_REVOKE"

	PermNewsCreate  = "NEWS_CREATE"
	PermNewsUpdate  = "NEWS_UPDATE"
	PermNewsPublish = "NEWS_PUBLISH"
	PermNewsDelete  = "NEWS_DELETE"

	PermSocialEmbedUpdate = "SOCIAL_EMBED_UPDATE"

	PermMembershipApprove = "MEMBERSHIP_APPROVE"
	PermMembershipReject  = "MEMBERSHIP_REJECT"

	PermAnalyticsView = "ANALYTICS_VIEW"
)

// BuiltinRoles is the enumerated role set seeded at bootstrap.
var BuiltinRoles = []string{RoleSuperAdmin, RoleAdmin, RoleModerator, RolePR}

// BuiltinPermissions enumerates every capability the system gates on.
var BuiltinPermissions = []string{
	PermUserCreate, PermUserUpdate, PermUserDelete, PermUserView,
	PermRoleAssign, PermRoleRevoke,
	PermNewsCreate, PermNewsUpdate, PermNewsPublish, PermNewsDelete,
	PermSocialEmbedUpdate,
	PermMembershipApprove, PermMembershipReject,
	PermAnalyticsView,
}

// RoleGrants maps each builtin role to the permissions it carries.
// SUPER_ADMIN holds everything.
var RoleGrants = map[string][]string{
	RoleSuperAdmin: BuiltinPermissions,

	RoleAdmin: {
		PermUserCreate, PermUserUpdate, PermUserView,
		PermRoleAssign,
		PermNewsCreate, PermNewsUpdate, PermNewsPublish,
		PermSocialEmbedUpdate,
		PermMembershipApprove, PermMembershipReject,
		PermAnalyticsView,
	},

	RoleModerator: {
		PermNewsCreate, PermNewsUpdate,
		PermSocialEmbedUpdate,
		PermMembershipApprove, PermMembershipReject,
	},

	RolePR: {PermNewsCreate, PermSocialEmbedUpdate},
}
