package service

import "context"

type contextKey string

const operatorKey contextKey = "operator"

// OperatorInfo identifies the authenticated caller of an admin operation.
type OperatorInfo struct {
	UserID string
	Name   string
	Role   string
}

func (o *OperatorInfo) IsAdmin() bool {
	return o != nil && o.Role == RoleAdmin
}

const RoleAdmin = "admin"

func WithOperator(ctx context.Context, op *OperatorInfo) context.Context {
	return context.WithValue(ctx, operatorKey, op)
}

func GetOperatorInfo(ctx context.Context) *OperatorInfo {
	op, _ := ctx.Value(operatorKey).(*OperatorInfo)
	return op
}

// GetOperator returns the caller's name for logs, or "scheduler" for
// operations that did not originate from a request.
func GetOperator(ctx context.Context) string {
	if op := GetOperatorInfo(ctx); op != nil {
		return op.Name
	}
	return "scheduler"
}
