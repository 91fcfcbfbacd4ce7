package handlers

// handlers are the gin routes for the web front end. They resolve the
// session, hand the request to the pipeline and turn errors into JSON.

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	log "github.com/sirupsen/logrus"

	"setlistify/apperrors"
	"setlistify/auth"
	"setlistify/database"
	"setlistify/models"
	"setlistify/pages"
	"setlistify/pipeline"
	"setlistify/sentryhelper"
	"setlistify/spotify"
)

const (
	maxUploadBytes = 10 << 20
	historyLimit   = 20
)

// HistoryReader lists playlists this service created for an owner.
type HistoryReader interface {
	GetPlaylists(ctx context.Context, ownerID string, limit int) ([]database.PlaylistRecord, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Options struct {
	Pipeline  *pipeline.Pipeline
	Login     *auth.Login
	Refresher auth.Refresher
	Sessions  SessionBackend
	Clock     auth.Clock
	APIURL    string

	// Service is nil when the shared-account mode is not configured.
	Service       *auth.ServiceTokens
	AdminPassword string
	ServiceUserID string

	// History and Health are nil without a database.
	History HistoryReader
	Health  Pinger
}

type Manager struct {
	pipeline  *pipeline.Pipeline
	login     *auth.Login
	refresher auth.Refresher
	sessions  SessionBackend
	clock     auth.Clock
	apiURL    string

	service       *auth.ServiceTokens
	adminPassword string
	serviceUserID string

	history HistoryReader
	health  Pinger
}

func NewManager(opts Options) *Manager {
	clock := opts.Clock
	if clock == nil {
		clock = auth.SystemClock{}
	}
	return &Manager{
		pipeline:      opts.Pipeline,
		login:         opts.Login,
		refresher:     opts.Refresher,
		sessions:      opts.Sessions,
		clock:         clock,
		apiURL:        opts.APIURL,
		service:       opts.Service,
		adminPassword: opts.AdminPassword,
		serviceUserID: opts.ServiceUserID,
		history:       opts.History,
		health:        opts.Health,
	}
}

func (m *Manager) Register(router gin.IRouter) {
	router.GET("/", m.handleLanding)
	router.GET("/healthz", m.handleHealth)
	router.GET("/auth", m.handleAuth)
	router.GET("/callback", m.handleCallback)
	router.GET("/search", m.handleSearchPage)
	router.POST("/logout", m.handleLogout)

	authed := router.Group("/", m.EnsureToken())
	authed.POST("/search", m.handleSearch)
	authed.POST("/create-playlist", m.handleCreatePlaylist)
	authed.GET("/getToken", m.handleGetToken)
	authed.GET("/history", m.handleHistory)

	router.POST("/admin/create-playlist", m.AdminGuard(), m.handleAdminCreatePlaylist)
}

func (m *Manager) tokenStore(c *gin.Context) *auth.TokenStore {
	return auth.NewTokenStore(m.sessions.Session(c), m.refresher, m.clock)
}

func (m *Manager) handleLanding(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(pages.Landing))
}

func (m *Manager) handleSearchPage(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(pages.Search))
}

func (m *Manager) handleHealth(c *gin.Context) {
	if m.health != nil {
		if err := m.health.Ping(c.Request.Context()); err != nil {
			log.Errorf("Health check failed: %v", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (m *Manager) handleAuth(c *gin.Context) {
	c.Redirect(http.StatusFound, m.login.Begin(c.Writer))
}

func (m *Manager) handleCallback(c *gin.Context) {
	ctx := c.Request.Context()
	pair, err := m.login.Complete(ctx, c.Writer, c.Request)
	if err != nil {
		respondError(c, err)
		return
	}
	sessions, err := m.sessions.Fresh(c)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := auth.NewTokenStore(sessions, m.refresher, m.clock).Save(ctx, *pair); err != nil {
		respondError(c, err)
		return
	}
	log.Debug("Spotify login complete")
	c.Redirect(http.StatusFound, "/search")
}

func (m *Manager) handleLogout(c *gin.Context) {
	if err := m.tokenStore(c).Clear(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// handleGetToken hands the access token to the front end, unless sessions
// are server-side, in which case it only confirms the session.
func (m *Manager) handleGetToken(c *gin.Context) {
	if m.sessions.ServerSide() {
		c.JSON(http.StatusOK, gin.H{"authenticated": true})
		return
	}
	c.JSON(http.StatusOK, gin.H{"spotifyAccessToken": accessToken(c)})
}

func (m *Manager) handleSearch(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes+(1<<20))
	if err := c.Request.ParseMultipartForm(maxUploadBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(c, apperrors.Input("File too large", err))
			return
		}
		respondError(c, apperrors.Input("Invalid form data", err))
		return
	}

	in := pipeline.Input{Kind: pipeline.InputKind(c.PostForm("inputType"))}
	switch in.Kind {
	case pipeline.InputText:
		in.Text = c.PostForm("setlistText")
	case pipeline.InputImage:
		data, filename, err := readUpload(c, "file")
		if err != nil {
			respondError(c, err)
			return
		}
		in.Image, in.Filename = data, filename
	case pipeline.InputURL:
		in.URL = c.PostForm("setlistUrl")
	}

	run := pipeline.NewRun()
	sentryhelper.SetTag(c.Request.Context(), "run", run.ID)
	tracks, err := m.pipeline.Search(c.Request.Context(), run, in, accessToken(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tracks": tracks})
}

func readUpload(c *gin.Context, field string) ([]byte, string, error) {
	header, err := c.FormFile(field)
	if err != nil {
		return nil, "", apperrors.ErrInvalidFile
	}
	if header.Size > maxUploadBytes {
		return nil, "", apperrors.Input("File too large", nil)
	}
	f, err := header.Open()
	if err != nil {
		return nil, "", apperrors.ErrInvalidFile
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxUploadBytes))
	if err != nil {
		return nil, "", apperrors.ErrInvalidFile
	}
	return data, header.Filename, nil
}

func (m *Manager) handleCreatePlaylist(c *gin.Context) {
	_ = m.createPlaylist(c, accessToken(c), spotify.BuildOptions{Mode: spotify.ModeUser})
}

func (m *Manager) handleAdminCreatePlaylist(c *gin.Context) {
	token, err := m.service.AccessToken(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	err = m.createPlaylist(c, token, spotify.BuildOptions{Mode: spotify.ModeService, ExpectedOwner: m.serviceUserID})
	if apperrors.IsKind(err, apperrors.KindAuth) {
		// revoked upstream; the next request refreshes
		m.service.Invalidate()
	}
}

func (m *Manager) createPlaylist(c *gin.Context, token string, opts spotify.BuildOptions) error {
	var req models.PlaylistRequest
	if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
		err = apperrors.Input("Invalid request body", err)
		respondError(c, err)
		return err
	}

	playlist, err := m.pipeline.CreatePlaylist(c.Request.Context(), pipeline.NewSelectionRun(), req, token, opts)
	if err != nil {
		respondError(c, err)
		return err
	}
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"playlistId":  playlist.ID,
		"playlistUrl": playlist.URL,
	})
	return nil
}

type historyEntry struct {
	PlaylistID string    `json:"playlistId"`
	Name       string    `json:"name"`
	URL        string    `json:"playlistUrl"`
	TrackCount int       `json:"trackCount"`
	Mode       string    `json:"mode"`
	CreatedAt  time.Time `json:"createdAt"`
}

func (m *Manager) handleHistory(c *gin.Context) {
	entries := []historyEntry{}
	if m.history == nil {
		c.JSON(http.StatusOK, gin.H{"playlists": entries})
		return
	}

	ctx := c.Request.Context()
	owner, err := spotify.CurrentUserID(ctx, spotify.NewClient(ctx, accessToken(c), m.apiURL))
	if err != nil {
		respondError(c, err)
		return
	}
	sentryhelper.SetUser(ctx, owner)

	records, err := m.history.GetPlaylists(ctx, owner, historyLimit)
	if err != nil {
		respondError(c, err)
		return
	}
	for _, r := range records {
		entries = append(entries, historyEntry{
			PlaylistID: r.PlaylistID,
			Name:       r.Name,
			URL:        r.URL,
			TrackCount: r.TrackCount,
			Mode:       r.Mode,
			CreatedAt:  r.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"playlists": entries})
}
