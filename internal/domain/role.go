package domain

// Operator roles carried in bearer tokens. Only admins may issue access codes.
const (
	RoleAdmin    = "admin"
	RoleOperator = "operator"
)
