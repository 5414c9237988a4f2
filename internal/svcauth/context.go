package svcauth

import "context"

type serviceKey struct{}

// ContextWithService stamps the authenticated caller service name on the
// context.
func ContextWithService(ctx context.Context, service string) context.Context {
	return context.WithValue(ctx, serviceKey{}, service)
}

// ServiceFromContext returns the authenticated caller service name, or ""
// when the request did not pass service authentication.
func ServiceFromContext(ctx context.Context) string {
	service, _ := ctx.Value(serviceKey{}).(string)
	return service
}
