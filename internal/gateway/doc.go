// Package gateway wires switchyard's components into an HTTP server.
//
// # Overview
//
// The gateway owns component lifecycle: it builds the capability and session
// stores, the agent registry, the two-stage router, the security injector,
// and the dispatcher, then exposes them over HTTP.
//
// # Endpoints
//
// Unauthenticated:
//
//	GET  /healthz
//
// Authenticated (bearer token):
//
//	POST   /api/query                  submit a query (rate limited per principal)
//	GET    /api/sessions               list the caller's sessions
//	GET    /api/sessions/{id}          one session with history
//	POST   /api/sessions/{id}/close    close a session
//	DELETE /api/sessions/{id}          hard delete (admin)
//
// Admin only:
//
//	GET    /api/admin/agents                    list descriptors
//	POST   /api/admin/agents                    register a remote agent (lands pending)
//	GET    /api/admin/agents/{name}             one descriptor
//	POST   /api/admin/agents/{name}/approve     approve a pending remote
//	POST   /api/admin/agents/{name}/suspend     suspend a remote
//	POST   /api/admin/agents/{name}/enable      enable routing
//	POST   /api/admin/agents/{name}/disable     disable routing
//	PUT    /api/admin/agents/{name}/capability  replace the capability declaration
//	DELETE /api/admin/agents/{name}             deregister
//
// # Shutdown
//
// Run blocks until its context is canceled, then drains the HTTP server and
// closes the stores.
package gateway
