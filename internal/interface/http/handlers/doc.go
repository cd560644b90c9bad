// Package handlers contains HTTP health handlers and reusable middleware.
//
// # Health Checks
//
// The HealthChecker interface aggregates named checks for the hub's
// best-effort sinks. The presence core runs in process, so a failing
// sink marks the status degraded instead of unhealthy:
//
//	checker := handlers.NewCompositeHealthChecker("v1.0.0")
//	checker.AddCheck("postgres", handlers.NewDatabaseCheck(db))
//	checker.AddCheck("redis", handlers.NewCacheCheck(cache))
//
//	status := checker.Check(ctx)
//	if status.Degraded {
//	    log.Printf("running degraded: %s", status.Message)
//	}
//
// # Middleware
//
// Middleware wraps the hub's HTTP surface:
//
//	handler := handlers.ChainHandler(
//	    myHandler,
//	    handlers.SecurityHeadersMiddleware,
//	    handlers.NoCacheMiddleware,
//	)
//
// TimeoutMiddleware bounds archive-backed requests; RequestSizeLimitMiddleware
// caps request bodies on the notification endpoints.
package handlers
