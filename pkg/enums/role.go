package enums

import "slices"

// Role is the marketplace role carried by a user and in access tokens.
type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleVendor Role = "vendor"
	RoleAdmin  Role = "admin"
)

var validRoles = []Role{
	RoleBuyer,
	RoleVendor,
	RoleAdmin,
}

func (r Role) String() string {
	return string(r)
}

func (r Role) IsValid() bool {
	return slices.Contains(validRoles, r)
}

func ParseRole(value string) (Role, error) {
	return parse("role", value, validRoles)
}

// Permission is a single authorization capability.
type Permission string

const (
	PermissionShop             Permission = "shop"
	PermissionSellProducts     Permission = "sell_products"
	PermissionModerateProducts Permission = "moderate_products"
	PermissionManageUsers      Permission = "manage_users"
	PermissionManageOrders     Permission = "manage_orders"
	PermissionViewWallets      Permission = "view_wallets"
	PermissionManageCatalog    Permission = "manage_catalog"
)

var rolePermissions = map[Role][]Permission{
	RoleBuyer: {
		PermissionShop,
	},
	RoleVendor: {
		PermissionShop,
		PermissionSellProducts,
	},
	RoleAdmin: {
		PermissionShop,
		PermissionSellProducts,
		PermissionModerateProducts,
		PermissionManageUsers,
		PermissionManageOrders,
		PermissionViewWallets,
		PermissionManageCatalog,
	},
}

// Can reports whether the role grants the permission.
func (r Role) Can(p Permission) bool {
	return slices.Contains(rolePermissions[r], p)
}
