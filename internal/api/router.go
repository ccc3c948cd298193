package api

import (
	"context"
	"net/http"

	"github.com/julienschmidt/httprouter"

	apiContext "memberpay/internal/api/context"
	"memberpay/internal/api/handlers"
	"memberpay/internal/api/middleware"
	apierrors "memberpay/internal/pkg/errors"
)

type Dependencies struct {
	WebhookHandler  *handlers.WebhookHandler
	MemberHandler   *handlers.MemberHandler
	CheckoutHandler *handlers.CheckoutHandler
	JobsHandler     *handlers.JobsHandler
	HealthHandler   *handlers.HealthHandler
	MetricsHandler  *handlers.MetricsHandler
	AuditHandler    *handlers.AuditHandler
	JobsAuth        *middleware.JobsAuth
	RateLimiter     *middleware.RateLimiter

	PublicPerMinute int
}

func NewRouter(deps *Dependencies) http.Handler {
	router := httprouter.New()
	router.NotFound = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apierrors.WriteError(w, http.StatusNotFound, apierrors.ErrCodeNotFound, "Route not found", nil)
	})

	publicLimit := deps.RateLimiter.Limit("public", deps.PublicPerMinute)

	// Operational
	router.GET("/healthz", wrap(deps.HealthHandler.Check))
	router.GET("/metrics", wrap(deps.MetricsHandler.Export))

	// Provider webhooks. Not rate limited: Paystack must get a 2xx for every
	// parseable delivery, and duplicates are absorbed by the claim store.
	router.POST("/webhooks/paystack", wrap(deps.WebhookHandler.Paystack))

	// Members
	router.POST("/api/v1/members", chain(deps.MemberHandler.Register, publicLimit))
	router.GET("/api/v1/members/:owner_id", chain(deps.MemberHandler.Get, publicLimit))
	router.PUT("/api/v1/members/:owner_id/profile", chain(deps.MemberHandler.SaveProfile, publicLimit))
	router.POST("/api/v1/members/:owner_id/payment-check", chain(deps.MemberHandler.PaymentCheck, publicLimit))

	// Checkout
	router.POST("/api/v1/checkout", chain(deps.CheckoutHandler.Create, publicLimit))

	// Operator endpoints
	router.POST("/internal/jobs/:job", chain(deps.JobsHandler.Trigger, deps.JobsAuth.Handle))
	router.GET("/internal/members/:owner_id/reconciliation", chain(deps.AuditHandler.List, deps.JobsAuth.Handle))

	return middleware.AccessLog(router)
}

// chain applies middlewares so the first one listed runs first.
func chain(handler http.HandlerFunc, middlewares ...func(http.HandlerFunc) http.HandlerFunc) httprouter.Handle {
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	return wrap(handler)
}

// wrap converts an http.HandlerFunc to an httprouter.Handle, putting the
// route params on the request context.
func wrap(handler http.HandlerFunc) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		ctx := context.WithValue(r.Context(), apiContext.Params, ps)
		handler(w, r.WithContext(ctx))
	}
}
