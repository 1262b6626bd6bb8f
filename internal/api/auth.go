package api

import (
    "context"
    "errors"
    "net/http"
    "strings"

    "tripdispatch/internal/auth"
    "tripdispatch/internal/dispatch"
)

type ctxKeyActor struct{}

var errNoCredentials = errors.New("missing bearer token")

// principal resolves the caller from the Authorization header, the
// access_token query parameter (browser websockets cannot set headers), or
// in dev mode from X-Tenant-Id / X-Role / X-User-Id / X-Driver-Id headers.
func (s *Server) principal(r *http.Request) (auth.Principal, error) {
    tok := ""
    if authz := r.Header.Get("Authorization"); len(authz) > 7 && strings.EqualFold(authz[:7], "bearer ") {
        tok = strings.TrimSpace(authz[7:])
    } else if q := r.URL.Query().Get("access_token"); q != "" {
        tok = q
    }
    if tok != "" {
        return s.Auth.Verify(tok)
    }
    if !s.Cfg.DevHeaders || s.Auth.Mode() != "dev" {
        return auth.Principal{}, errNoCredentials
    }
    tenant := strings.TrimSpace(r.Header.Get("X-Tenant-Id"))
    if tenant == "" {
        return auth.Principal{}, errors.New("X-Tenant-Id header required")
    }
    role := strings.ToLower(strings.TrimSpace(r.Header.Get("X-Role")))
    if role == "" { role = auth.RoleAdmin }
    p := auth.Principal{Tenant: tenant, Role: role, Subject: strings.TrimSpace(r.Header.Get("X-User-Id"))}
    if role == auth.RoleDriver {
        p.Subject = strings.TrimSpace(r.Header.Get("X-Driver-Id"))
        if p.Subject == "" { return auth.Principal{}, errors.New("X-Driver-Id header required for drivers") }
    }
    if p.Subject == "" { return auth.Principal{}, errors.New("X-User-Id header required") }
    return p, nil
}

func actorFor(p auth.Principal) (dispatch.Actor, bool) {
    a := dispatch.Actor{ID: p.Subject, Name: p.Name, Role: p.Role, TenantID: p.Tenant}
    switch {
    case p.IsDriver():
        a.Kind = dispatch.ActorDriver
    case p.IsStaff():
        a.Kind = dispatch.ActorStaff
    default:
        return dispatch.Actor{}, false
    }
    return a, true
}

// authenticate rejects unauthenticated requests and stores the Actor in the context.
func (s *Server) authenticate(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        p, err := s.principal(r)
        if err != nil {
            w.Header().Set("WWW-Authenticate", `Bearer realm="tripdispatch"`)
            writeProblem(w, http.StatusUnauthorized, "Unauthorized", err.Error(), r.URL.Path)
            return
        }
        a, ok := actorFor(p)
        if !ok {
            writeProblem(w, http.StatusForbidden, "Forbidden", "role "+p.Role+" has no access", r.URL.Path)
            return
        }
        next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKeyActor{}, a)))
    })
}

func actorOf(r *http.Request) dispatch.Actor {
    a, _ := r.Context().Value(ctxKeyActor{}).(dispatch.Actor)
    return a
}
