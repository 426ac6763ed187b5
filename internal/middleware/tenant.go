package middleware

import (
	"context"
	"net/http"
	"strings"
)

const tenantIDKey contextKey = "tenant_id"

// TenantIDHeader is the HTTP header naming the calling tenant
const TenantIDHeader = "X-Tenant-ID"

// Tenant returns a middleware that stores the X-Tenant-ID header in the request context
func Tenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantID := strings.TrimSpace(r.Header.Get(TenantIDHeader))
		if tenantID == "" {
			next.ServeHTTP(w, r)
			return
		}

		ctx := context.WithValue(r.Context(), tenantIDKey, tenantID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetTenantID retrieves the tenant ID from context
func GetTenantID(ctx context.Context) string {
	if id, ok := ctx.Value(tenantIDKey).(string); ok {
		return id
	}
	return ""
}
