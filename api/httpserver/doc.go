// Package httpserver is the HTTP plumbing under the relay: a chi router with
// request-id, real-ip, and recoverer middleware, slog request logging,
// liveness and readiness checks (/livez, /readyz), drain control for load
// balancers (/drain, /undrain), an optional pprof mount, and a Prometheus
// metrics listener on a separate address.
//
// Components attach their routes by implementing RouteRegistrar and passing
// themselves to New; see services.RelayHandler for the relay's routes.
package httpserver
