package utils

import (
	"context"

	"github.com/DhruviKhanpara/LMS-sub001/appctx"
	"github.com/google/uuid"
)

var (
	ContextKeyToken           = appctx.ContextKeyToken
	ContextKeyUserId          = appctx.ContextKeyUserId
	ContextKeyUserName        = appctx.ContextKeyUserName
	ContextKeyRole            = appctx.ContextKeyRole
	ContextKeyCorrelationId   = appctx.ContextKeyCorrelationId
	ContextKeyIncludeInactive = appctx.ContextKeyIncludeInactive
)

// SystemActor is recorded for changes made by background jobs.
const SystemActor = "System"

func GetTokenFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyToken)
}

func GetUserIdFromContext(ctx context.Context) (int, bool) {
	return appctx.GetInt(ctx, ContextKeyUserId)
}

func GetUserNameFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyUserName)
}

func GetRoleFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyRole)
}

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyCorrelationId)
}

// CorrelationIdOrNew returns the request correlation id, or a fresh one for
// work started outside a request.
func CorrelationIdOrNew(ctx context.Context) string {
	if id, ok := GetCorrelationIdFromContext(ctx); ok && id != "" {
		return id
	}
	return uuid.NewString()
}

// ActorFromContext names who is making the change for audit rows.
func ActorFromContext(ctx context.Context) (userId *int, name string) {
	if id, ok := GetUserIdFromContext(ctx); ok && id > 0 {
		userId = &id
	}
	name, ok := GetUserNameFromContext(ctx)
	if !ok || name == "" {
		name = SystemActor
	}
	return userId, name
}

func IsStaffContext(ctx context.Context) bool {
	role, _ := GetRoleFromContext(ctx)
	return role == RoleStaff || role == RoleAdmin
}

func SetTokenInContext(ctx context.Context, token string) context.Context {
	return appctx.Set(ctx, ContextKeyToken, token)
}

func SetUserIdInContext(ctx context.Context, userId int) context.Context {
	return appctx.Set(ctx, ContextKeyUserId, userId)
}

func SetUserNameInContext(ctx context.Context, userName string) context.Context {
	return appctx.Set(ctx, ContextKeyUserName, userName)
}

func SetRoleInContext(ctx context.Context, role string) context.Context {
	return appctx.Set(ctx, ContextKeyRole, role)
}

func SetCorrelationIdInContext(ctx context.Context, correlationId string) context.Context {
	return appctx.Set(ctx, ContextKeyCorrelationId, correlationId)
}

func GetIncludeInactiveFromContext(ctx context.Context) (bool, bool) {
	return appctx.GetBool(ctx, ContextKeyIncludeInactive)
}

func SetIncludeInactiveInContext(ctx context.Context, include bool) context.Context {
	return appctx.Set(ctx, ContextKeyIncludeInactive, include)
}
