// Package httputil holds the JSON response, request parsing and middleware
// helpers shared by the API handlers.
//
// # Responses
//
// Every error body has the shape {"error": "<message>"}:
//
//	httputil.WriteJSON(w, http.StatusOK, channel)
//	httputil.WriteBadRequest(w, "name is required")
//
// Errors coming from the access chain or the stores are mapped to a status
// by WriteAuthError and WriteStoreError. Internal causes are logged and
// never written to the client:
//
//	principal, err := authn.ResolveBearer(ctx, r.Header.Get("Authorization"))
//	if err != nil {
//		httputil.WriteAuthError(w, r, err)
//		return
//	}
//
// # Requests
//
//	var req CreateChannelRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return
//	}
//	id, ok := httputil.ParsePathStringOrError(w, r, "id")
//	from, err := httputil.ParseQueryTime(r, "from", time.Time{})
//
// # Middleware
//
//	handler := httputil.Chain(
//		httputil.RecoveryMiddleware(logger),
//		httputil.RequestIDMiddleware(logger),
//		httputil.LoggingMiddleware(logger),
//		httputil.CORSMiddleware(cfg.AllowedOrigins),
//		httputil.MaxBytesMiddleware(1<<20),
//	)(router)
package httputil
