package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/printpush/printpush/internal/api/models"
	"github.com/printpush/printpush/internal/api/response"
	"github.com/printpush/printpush/internal/apps"
	"github.com/printpush/printpush/internal/remoteconfig"
)

// AppRegistry is the part of the app registry the API needs.
type AppRegistry interface {
	Register(ctx context.Context, req apps.RegisterRequest) (apps.AppInstance, error)
	GetAll(ctx context.Context) ([]apps.AppInstance, error)
	Unregister(ctx context.Context, token string) error
}

// RemoteConfig provides the current remote config without blocking.
type RemoteConfig interface {
	Current() remoteconfig.Config
}

// AppsHandler handles app registration endpoints.
type AppsHandler struct {
	registry AppRegistry
	config   RemoteConfig
	logger   zerolog.Logger
}

// NewAppsHandler creates a new AppsHandler.
func NewAppsHandler(registry AppRegistry, config RemoteConfig, logger zerolog.Logger) *AppsHandler {
	return &AppsHandler{registry: registry, config: config, logger: logger}
}

// RegisterApp handles POST /v1/apps - register or refresh an app instance.
func (h *AppsHandler) RegisterApp(w http.ResponseWriter, r *http.Request) {
	var input models.AppRegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	app, err := h.registry.Register(r.Context(), apps.RegisterRequest{
		Token:              input.FCMToken,
		FallbackToken:      input.FCMTokenFallback,
		InstanceID:         input.InstanceID,
		DisplayName:        input.DisplayName,
		DisplayDescription: input.DisplayDescription,
		Model:              input.Model,
		AppVersion:         input.AppVersion,
		AppBuild:           input.AppBuild,
		AppLanguage:        input.AppLanguage,
		ExpireInSecs:       input.ExpireInSecs,
	})
	if err != nil {
		var verr *apps.ValidationError
		if errors.As(err, &verr) {
			fields := make([]models.FieldError, 0, len(verr.Fields))
			for _, f := range verr.Fields {
				fields = append(fields, models.FieldError{Field: f.Field, Message: f.Message, Code: "INVALID"})
			}
			response.BadRequest(w, r, "invalid app registration", fields)
			return
		}
		h.logger.Error().Err(err).Str("subject", GetSubject(r.Context())).Msg("failed to register app")
		response.InternalError(w, r, "failed to store registration")
		return
	}

	location := "/v1/apps/" + url.PathEscape(app.Token)
	response.Created(w, r, location, toAppModel(app, h.minAppBuild()))
}

// ListApps handles GET /v1/apps - list registered apps ordered by expiry.
func (h *AppsHandler) ListApps(w http.ResponseWriter, r *http.Request) {
	list, err := h.registry.GetAll(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list apps")
		response.InternalError(w, r, "failed to load registrations")
		return
	}

	sort.SliceStable(list, func(i, j int) bool {
		return list[i].ExpireAt.Before(list[j].ExpireAt)
	})

	minBuild := h.minAppBuild()
	out := models.AppList{Items: make([]models.App, 0, len(list))}
	for _, app := range list {
		out.Items = append(out.Items, toAppModel(app, minBuild))
	}
	response.JSON(w, r, http.StatusOK, out)
}

// UnregisterApp handles DELETE /v1/apps/{token} - remove an app instance.
func (h *AppsHandler) UnregisterApp(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if token == "" {
		response.BadRequest(w, r, "token is required", nil)
		return
	}

	if err := h.registry.Unregister(r.Context(), token); err != nil {
		if errors.Is(err, apps.ErrAppNotFound) {
			response.NotFound(w, r, "app not found")
			return
		}
		h.logger.Error().Err(err).Msg("failed to unregister app")
		response.InternalError(w, r, "failed to remove registration")
		return
	}

	response.NoContent(w, r)
}

func (h *AppsHandler) minAppBuild() int {
	if h.config == nil {
		return 0
	}
	return h.config.Current().MinAppBuild
}

func toAppModel(app apps.AppInstance, minBuild int) models.App {
	platform := models.PlatformAndroid
	switch {
	case app.IsActivity():
		platform = models.PlatformActivity
	case app.IsIOS():
		platform = models.PlatformIOS
	}

	return models.App{
		TokenLast4:         app.TokenSuffix(),
		InstanceID:         app.InstanceID,
		DisplayName:        app.DisplayName,
		DisplayDescription: app.DisplayDescription,
		Model:              app.Model,
		AppVersion:         app.AppVersion,
		AppBuild:           app.AppBuild,
		AppLanguage:        app.AppLanguage,
		Platform:           platform,
		LastSeenAt:         models.Timestamp(app.LastSeenAt),
		ExpireAt:           models.Timestamp(app.ExpireAt),
		NeedsUpdate:        app.NeedsUpdate(minBuild),
	}
}
