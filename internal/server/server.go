package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"missiondir/internal/authz"
	"missiondir/internal/idgen"
	"missiondir/internal/service"
	"missiondir/internal/store"
)

// Config for the HTTP API handler.
type Config struct {
	Service           service.Service
	Store             store.Store
	PersonnelBasePath string
	AdminBasePath     string
	Auth              AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"forbidden"`
	Message string         `json:"message" example:"scope \"read\" does not permit create-mission"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Mission Directory API under
// the personnel and admin base paths. Both surfaces dispatch to the same
// gateway; only the caller's resolved scope distinguishes them.
func New(cfg Config) (http.Handler, error) {
	personnelBase := normalizeBasePath(cfg.PersonnelBasePath, "/personnel/v1")
	adminBase := normalizeBasePath(cfg.AdminBasePath, "/admin/v1")
	if personnelBase == adminBase {
		return nil, fmt.Errorf("personnel and admin base paths must differ")
	}

	huma.DefaultArrayNullable = false
	// Override Huma errors to use the error envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware([]string{personnelBase, adminBase}, cfg.Auth, cfg.Store))
	hcfg := huma.DefaultConfig("Mission Directory API", "0.1.0")
	hcfg.OpenAPIPath = "" // custom route below, avoids clashing with the chi handler
	hcfg.DocsPath = ""    // custom Swagger UI below
	api := humachi.New(router, hcfg)

	registerDocs(router)
	registerHealth(api)
	for _, surface := range []struct {
		name string
		base string
	}{
		{name: "personnel", base: personnelBase},
		{name: "admin", base: adminBase},
	} {
		group := huma.NewGroup(api, surface.base)
		registerMissions(group, surface.name, cfg.Service)
		registerMe(group, surface.name)
	}
	registerOpenAPI(router, api)

	return router, nil
}

func normalizeBasePath(base, fallback string) string {
	if base == "" {
		base = fallback
	}
	if !strings.HasPrefix(base, "/") {
		base = "/" + base
	}
	return strings.TrimSuffix(base, "/")
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

// handleError translates internal outcomes into the response envelope.
// Infrastructure failures come out as an opaque server error; backend
// detail never reaches the caller.
func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var fe authz.ForbiddenError
	if errors.As(err, &fe) {
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), map[string]any{"operation": string(fe.Operation)})
	}
	var ve service.ValidationError
	if errors.As(err, &ve) {
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), map[string]any{"field": ve.Field})
	}
	if errors.Is(err, store.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", "mission not found", nil)
	}
	var ge idgen.GenerationError
	if errors.As(err, &ge) {
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", nil)
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerMissions(api huma.API, surface string, svc service.Service) {
	huma.Register(api, huma.Operation{
		OperationID: surface + "-get-mission",
		Method:      http.MethodGet,
		Path:        "/missions/{id}",
		Summary:     "Get mission",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body MissionOutput `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := authz.Authorize(principal.Scope, authz.OpGetMission); err != nil {
			return nil, handleError(err)
		}
		m, err := svc.GetMission(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MissionOutput `json:"body"`
		}{Body: missionOutput(m)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   surface + "-create-mission",
		Method:        http.MethodPost,
		Path:          "/missions",
		Summary:       "Create mission",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateMissionInput `json:"body"`
	}) (*struct {
		Body CreateMissionOutput `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := authz.Authorize(principal.Scope, authz.OpCreateMission); err != nil {
			return nil, handleError(err)
		}
		m, err := svc.CreateMission(ctx, input.Body.Name, input.Body.Description, principal.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CreateMissionOutput `json:"body"`
		}{Body: createMissionOutput(m)}, nil
	})
}

func registerMe(api huma.API, surface string) {
	huma.Register(api, huma.Operation{
		OperationID: surface + "-me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current principal",
		Errors: []int{
			http.StatusUnauthorized,
		},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body WhoAmIResponse `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		ops := make([]string, 0, 2)
		for _, op := range authz.Operations(principal.Scope) {
			ops = append(ops, string(op))
		}
		return &struct {
			Body WhoAmIResponse `json:"body"`
		}{Body: WhoAmIResponse{
			ActorID:    principal.ActorID,
			Scope:      string(principal.Scope),
			Source:     principal.Source,
			Operations: ops,
		}}, nil
	})
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerDocs(r chi.Router) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML("/openapi.json"))
	})
}

func registerOpenAPI(r chi.Router, api huma.API) {
	var spec []byte
	r.Get("/openapi.json", func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			applyAuthSecurity(oas)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func applyAuthSecurity(oas *huma.OpenAPI) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if route == "/health" {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(specPath string) string {
	specURL := path.Join("/", specPath)
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Mission Directory API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
}
