package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type ConfigStruct struct {
	Spotify  SpotifyConfig
	Service  ServiceAccountConfig
	Gemini   GeminiConfig
	Session  SessionConfig
	Setlist  SetlistConfig
	Options  Options
	Tunnel   TunnelConfig
	Database DatabaseConfig
	Sentry   SentryConfig
}

type SpotifyConfig struct {
	ClientID          string
	ClientSecret      string
	RedirectURI       string
	Market            string
	SearchLimit       int
	SearchConcurrency int
	AccountsURL       string
	APIURL            string
}

// ServiceAccountConfig drives the shared-playlist mode, where playlists are
// created under one fixed Spotify account instead of the logged-in user.
type ServiceAccountConfig struct {
	ClientID      string
	ClientSecret  string
	RefreshToken  string
	UserID        string
	AdminPassword string
}

type GeminiConfig struct {
	APIKey  string
	Models  []string
	Backoff time.Duration
}

type SessionConfig struct {
	Backend      string
	CookieSecure bool
}

type SetlistConfig struct {
	AllowedHosts []string
}

type Options struct {
	Port     string
	LogLevel string
}

type TunnelConfig struct {
	NgrokDomain string
}

type DatabaseConfig struct {
	Path string
}

type SentryConfig struct {
	DSN              string
	Release          string
	Environment      string
	TracesSampleRate float64
}

const (
	SessionBackendCookie = "cookie"
	SessionBackendSQLite = "sqlite"
)

var defaultGeminiModels = []string{"gemini-2.0-flash", "gemini-2.0-flash-lite"}

func (t *TunnelConfig) IsEnabled() bool {
	return t.NgrokDomain != ""
}

func (s *ServiceAccountConfig) IsEnabled() bool {
	return s.AdminPassword != "" && s.RefreshToken != ""
}

func (g *GeminiConfig) IsEnabled() bool {
	return g.APIKey != ""
}

var Config *ConfigStruct

func NewConfig() {
	config := &ConfigStruct{
		Spotify: SpotifyConfig{
			ClientID:          os.Getenv("SPOTIFY_CLIENT_ID"),
			ClientSecret:      os.Getenv("SPOTIFY_CLIENT_SECRET"),
			RedirectURI:       os.Getenv("SPOTIFY_REDIRECT_URI"),
			Market:            getMarket(),
			SearchLimit:       getSearchLimit(),
			SearchConcurrency: getSearchConcurrency(),
			AccountsURL:       os.Getenv("SPOTIFY_ACCOUNTS_URL"),
			APIURL:            os.Getenv("SPOTIFY_API_URL"),
		},
		Service: ServiceAccountConfig{
			ClientID:      os.Getenv("SPOTIFY_SERVICE_CLIENT_ID"),
			ClientSecret:  os.Getenv("SPOTIFY_SERVICE_CLIENT_SECRET"),
			RefreshToken:  os.Getenv("SPOTIFY_REFRESH_TOKEN"),
			UserID:        os.Getenv("SPOTIFY_SERVICE_USER_ID"),
			AdminPassword: os.Getenv("ADMIN_PASSWORD"),
		},
		Gemini: GeminiConfig{
			APIKey:  os.Getenv("GEMINI_API_KEY"),
			Models:  getGeminiModels(),
			Backoff: getGeminiBackoff(),
		},
		Session: SessionConfig{
			Backend:      getSessionBackend(),
			CookieSecure: os.Getenv("COOKIE_SECURE") != "false",
		},
		Setlist: SetlistConfig{
			AllowedHosts: getSetlistHosts(),
		},
		Options: Options{
			Port:     os.Getenv("PORT"),
			LogLevel: os.Getenv("LOG_LEVEL"),
		},
		Tunnel: TunnelConfig{
			NgrokDomain: os.Getenv("NGROK_DOMAIN"),
		},
		Database: DatabaseConfig{
			Path: getDatabasePath(),
		},
		Sentry: SentryConfig{
			DSN:              os.Getenv("SENTRY_DSN"),
			Release:          os.Getenv("RELEASE"),
			Environment:      os.Getenv("SENTRY_ENVIRONMENT"),
			TracesSampleRate: getTracesSampleRate(),
		},
	}

	Config = config
}

func getMarket() string {
	market := strings.ToUpper(strings.TrimSpace(os.Getenv("SPOTIFY_MARKET")))
	if len(market) != 2 {
		return "JP"
	}
	return market
}

func getSearchLimit() int {
	limitStr := os.Getenv("SPOTIFY_SEARCH_LIMIT")
	if limitStr == "" {
		return 3
	}
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit <= 0 {
		return 3
	}
	if limit > 10 {
		return 10 // the candidate picker only cycles through a handful
	}
	return limit
}

func getSearchConcurrency() int {
	nStr := os.Getenv("SPOTIFY_SEARCH_CONCURRENCY")
	if nStr == "" {
		return 4
	}
	n, err := strconv.Atoi(nStr)
	if err != nil || n <= 0 {
		return 4
	}
	if n > 16 {
		return 16
	}
	return n
}

func getGeminiModels() []string {
	raw := os.Getenv("GEMINI_MODELS")
	if strings.TrimSpace(raw) == "" {
		return append([]string(nil), defaultGeminiModels...)
	}
	models := []string{}
	for _, m := range strings.Split(raw, ",") {
		if m = strings.TrimSpace(m); m != "" {
			models = append(models, m)
		}
	}
	if len(models) == 0 {
		return append([]string(nil), defaultGeminiModels...)
	}
	return models
}

func getGeminiBackoff() time.Duration {
	msStr := os.Getenv("GEMINI_BACKOFF_MS")
	if msStr == "" {
		return time.Second
	}
	ms, err := strconv.Atoi(msStr)
	if err != nil || ms < 0 {
		return time.Second
	}
	return time.Duration(ms) * time.Millisecond
}

func getSessionBackend() string {
	switch strings.ToLower(os.Getenv("SESSION_BACKEND")) {
	case SessionBackendSQLite:
		return SessionBackendSQLite
	default:
		return SessionBackendCookie
	}
}

func getSetlistHosts() []string {
	raw := os.Getenv("SETLISTFM_HOSTS")
	if raw == "" {
		return []string{"www.setlist.fm", "setlist.fm"}
	}
	hosts := []string{}
	for _, h := range strings.Split(raw, ",") {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			hosts = append(hosts, h)
		}
	}
	return hosts
}

func getDatabasePath() string {
	if path := os.Getenv("DB_PATH"); path != "" {
		return path
	}
	return "./data/setlistify.db"
}

func getTracesSampleRate() float64 {
	rateStr := os.Getenv("SENTRY_TRACES_SAMPLE_RATE")
	if rateStr == "" {
		return 1.0
	}
	rate, err := strconv.ParseFloat(rateStr, 64)
	if err != nil || rate < 0 || rate > 1 {
		return 1.0
	}
	return rate
}
