package user

import "errors"

var (
	ErrEmployeeIDRequired      = errors.New("token has no employee_id claim")
	ErrManagerAccessRequired   = errors.New("manager access required")
	ErrInsufficientPermissions = errors.New("insufficient permissions")
	ErrInvalidRole             = errors.New("invalid role")
)
