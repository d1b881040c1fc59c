package models

// AppRegisterRequest is the body of POST /v1/apps.
type AppRegisterRequest struct {
	FCMToken           string  `json:"fcmToken"`
	FCMTokenFallback   *string `json:"fcmTokenFallback,omitempty"`
	InstanceID         string  `json:"instanceId"`
	DisplayName        string  `json:"displayName"`
	DisplayDescription *string `json:"displayDescription,omitempty"`
	Model              string  `json:"model"`
	AppVersion         string  `json:"appVersion"`
	AppBuild           int     `json:"appBuild"`
	AppLanguage        string  `json:"appLanguage"`
	ExpireInSecs       *int64  `json:"expireInSecs,omitempty"`
}

// App is a registered app instance as shown to the host UI. The token is
// reduced to its last four characters.
type App struct {
	TokenLast4         string    `json:"tokenLast4"`
	InstanceID         string    `json:"instanceId"`
	DisplayName        string    `json:"displayName"`
	DisplayDescription *string   `json:"displayDescription,omitempty"`
	Model              string    `json:"model"`
	AppVersion         string    `json:"appVersion"`
	AppBuild           int       `json:"appBuild"`
	AppLanguage        string    `json:"appLanguage"`
	Platform           string    `json:"platform"`
	LastSeenAt         Timestamp `json:"lastSeenAt"`
	ExpireAt           Timestamp `json:"expireAt"`
	NeedsUpdate        bool      `json:"needsUpdate"`
}

// AppList is the response of GET /v1/apps, ordered by expireAt.
type AppList struct {
	Items []App `json:"items"`
}

// App platforms derived from the token class.
const (
	PlatformAndroid  = "android"
	PlatformIOS      = "ios"
	PlatformActivity = "activity"
)
