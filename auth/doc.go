// Package auth protects the control API with HS256 bearer tokens.
//
// Service mints tokens for a subject and verifies them; Middleware is the
// Gin middleware that enforces them on every route except the health and
// version probes.
//
//	svc, err := auth.NewService(cfg)
//	token, err := svc.Generate("ops")
//	router.Use(auth.Middleware(svc))
//
// Configuration:
//
//	auth:
//	  enabled: true
//	  secret: "at-least-32-characters-of-secret"
//	  ttl: 24h
package auth
