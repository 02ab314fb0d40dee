// Package api serves the SODAV Monitor REST surface.
//
// Human users authenticate with a bearer token and are gated by role;
// monitoring agents post detections with an API key holding
// detections:write. Every route runs behind request IDs, panic recovery,
// request logging, CORS and a body size cap, and per-caller rate limiting
// applies after authentication so users and keys get their own quotas.
//
//	srv := api.NewServer(api.Deps{
//		Authenticator: authenticator,
//		Monitor:       svc,
//		Channels:      store,
//		Songs:         store,
//		Detections:    store,
//		Keys:          auth.NewKeyManager(store),
//	})
//	http.ListenAndServe(":8080", srv)
package api
