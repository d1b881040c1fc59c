// Package apps provides the registry of client app instances that receive
// print notifications.
package apps

import (
	"errors"
	"sort"
	"strings"
	"time"
)

// Token prefixes. The prefix alone decides the delivery class of a token.
const (
	PrefixIOS      = "ios:"
	PrefixActivity = "activity:"
)

// DefaultExpireIn is used when a registration does not carry an expiry.
const DefaultExpireIn = 2592000 * time.Second

// Registry errors.
var (
	ErrAppNotFound = errors.New("app not found")
	ErrInvalidApp  = errors.New("invalid app registration")
)

// AppInstance is one registered client endpoint.
type AppInstance struct {
	Token              string
	FallbackToken      *string
	InstanceID         string
	DisplayName        string
	DisplayDescription *string
	Model              string
	AppVersion         string
	AppBuild           int
	AppLanguage        string
	LastSeenAt         time.Time
	ExpireAt           time.Time
}

// IsActivity reports whether the token is a transient live activity registration.
func (a AppInstance) IsActivity() bool {
	return strings.HasPrefix(a.Token, PrefixActivity)
}

// IsIOS reports whether the token is an iOS push token.
func (a AppInstance) IsIOS() bool {
	return strings.HasPrefix(a.Token, PrefixIOS)
}

// IsAndroid reports whether the token is an Android push token.
func (a AppInstance) IsAndroid() bool {
	return !a.IsActivity() && !a.IsIOS()
}

// IsExpired reports whether ExpireAt lies before now.
func (a AppInstance) IsExpired(now time.Time) bool {
	return a.ExpireAt.Before(now)
}

// NeedsUpdate reports whether the app build is below minBuild.
// A minBuild of zero or less disables the check.
func (a AppInstance) NeedsUpdate(minBuild int) bool {
	return minBuild > 0 && a.AppBuild < minBuild
}

// TokenSuffix returns the last 4 characters of the token for logging.
func (a AppInstance) TokenSuffix() string {
	if len(a.Token) < 4 {
		return a.Token
	}
	return a.Token[len(a.Token)-4:]
}

// Activities returns the live activity registrations, newest first.
func Activities(list []AppInstance) []AppInstance {
	out := filter(list, AppInstance.IsActivity)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastSeenAt.After(out[j].LastSeenAt)
	})
	return out
}

// IOSApps returns the iOS registrations.
func IOSApps(list []AppInstance) []AppInstance {
	return filter(list, AppInstance.IsIOS)
}

// AndroidApps returns the Android registrations.
func AndroidApps(list []AppInstance) []AppInstance {
	return filter(list, AppInstance.IsAndroid)
}

// Expired returns the registrations whose expiry lies before now.
func Expired(list []AppInstance, now time.Time) []AppInstance {
	return filter(list, func(a AppInstance) bool { return a.IsExpired(now) })
}

// GroupByInstance groups registrations by InstanceID, keeping the order in
// which each instance was first seen.
func GroupByInstance(list []AppInstance) [][]AppInstance {
	index := make(map[string]int)
	var groups [][]AppInstance
	for _, app := range list {
		i, ok := index[app.InstanceID]
		if !ok {
			i = len(groups)
			index[app.InstanceID] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], app)
	}
	return groups
}

// Tokens returns the tokens of the given registrations.
func Tokens(list []AppInstance) []string {
	tokens := make([]string, 0, len(list))
	for _, app := range list {
		tokens = append(tokens, app.Token)
	}
	return tokens
}

func filter(list []AppInstance, keep func(AppInstance) bool) []AppInstance {
	var out []AppInstance
	for _, app := range list {
		if keep(app) {
			out = append(out, app)
		}
	}
	return out
}

// RegisterRequest carries the fields of a client registration call.
type RegisterRequest struct {
	Token              string
	FallbackToken      *string
	InstanceID         string
	DisplayName        string
	DisplayDescription *string
	Model              string
	AppVersion         string
	AppBuild           int
	AppLanguage        string
	ExpireInSecs       *int64
}

// FieldError names a missing or malformed registration field.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError lists every field problem of a registration.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		names = append(names, f.Field)
	}
	return ErrInvalidApp.Error() + ": " + strings.Join(names, ", ")
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidApp
}

// Validate checks the required identity fields. Required fields are never defaulted.
func (r RegisterRequest) Validate() error {
	var fields []FieldError
	required := []struct {
		name  string
		value string
	}{
		{"fcmToken", r.Token},
		{"instanceId", r.InstanceID},
		{"displayName", r.DisplayName},
		{"model", r.Model},
		{"appVersion", r.AppVersion},
		{"appLanguage", r.AppLanguage},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			fields = append(fields, FieldError{Field: f.name, Message: "is required"})
		}
	}
	if r.AppBuild <= 0 {
		fields = append(fields, FieldError{Field: "appBuild", Message: "must be a positive integer"})
	}
	if r.ExpireInSecs != nil && *r.ExpireInSecs <= 0 {
		fields = append(fields, FieldError{Field: "expireInSecs", Message: "must be positive"})
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// toInstance builds the stored instance for a registration made at now.
func (r RegisterRequest) toInstance(now time.Time) AppInstance {
	expireIn := DefaultExpireIn
	if r.ExpireInSecs != nil {
		expireIn = time.Duration(*r.ExpireInSecs) * time.Second
	}
	return AppInstance{
		Token:              r.Token,
		FallbackToken:      r.FallbackToken,
		InstanceID:         r.InstanceID,
		DisplayName:        r.DisplayName,
		DisplayDescription: r.DisplayDescription,
		Model:              r.Model,
		AppVersion:         r.AppVersion,
		AppBuild:           r.AppBuild,
		AppLanguage:        r.AppLanguage,
		LastSeenAt:         now,
		ExpireAt:           now.Add(expireIn),
	}
}
