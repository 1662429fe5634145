// Package httpapi is the optional HTTP admin surface: health, live
// counters, online users, attachment listing and download, and the
// Prometheus metrics endpoint. It is read-only; all chat traffic stays
// on the unix socket.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"chatty/server/internal/filestore"
	"chatty/server/internal/protocol"
	"chatty/server/internal/registry"
	"chatty/server/internal/stats"
	"chatty/server/internal/store"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server is the Echo application.
type Server struct {
	echo  *echo.Echo
	reg   *registry.Registry
	stats *stats.Stats
	meta  *store.Store
	files *filestore.Store
}

// New constructs the Echo app. gatherer serves /metrics; pass nil to
// omit the endpoint.
func New(reg *registry.Registry, st *stats.Stats, meta *store.Store, files *filestore.Store, gatherer prometheus.Gatherer) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{echo: e, reg: reg, stats: st, meta: meta, files: files}
	s.registerRoutes(gatherer)
	return s
}

// Echo exposes the underlying Echo instance for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

func (s *Server) registerRoutes(gatherer prometheus.Gatherer) {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/api/stats", s.handleStats)
	s.echo.GET("/api/users", s.handleUsers)
	if s.meta != nil {
		s.echo.GET("/api/files", s.handleFileList)
	}
	if s.files != nil {
		s.echo.GET("/api/files/:name", s.handleFileDownload)
	}
	if gatherer != nil {
		s.echo.GET("/metrics", echo.WrapHandler(
			promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
}

// Run starts Echo and blocks until ctx cancellation or startup failure.
func (s *Server) Run(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		err := s.echo.Start(addr)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.echo.Shutdown(shutCtx)
		return nil
	}
}

type healthResponse struct {
	Status     string `json:"status"`
	Online     int    `json:"online"`
	Registered int    `json:"registered"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{
		Status:     "ok",
		Online:     s.reg.Online(),
		Registered: s.reg.Registered(),
	})
}

type statsResponse struct {
	Registered       int64 `json:"registered"`
	Online           int64 `json:"online"`
	Delivered        int64 `json:"delivered"`
	NotDelivered     int64 `json:"not_delivered"`
	FileDelivered    int64 `json:"file_delivered"`
	FileNotDelivered int64 `json:"file_not_delivered"`
	Errors           int64 `json:"errors"`
}

func (s *Server) handleStats(c echo.Context) error {
	snap := s.stats.Snapshot()
	return c.JSON(http.StatusOK, statsResponse{
		Registered:       snap.Registered,
		Online:           snap.Online,
		Delivered:        snap.Delivered,
		NotDelivered:     snap.NotDelivered,
		FileDelivered:    snap.FileDelivered,
		FileNotDelivered: snap.FileNotDelivered,
		Errors:           snap.Errors,
	})
}

type usersResponse struct {
	Online []string `json:"online"`
}

func (s *Server) handleUsers(c echo.Context) error {
	raw := s.reg.OnlineList()
	names := make([]string, 0, s.reg.Online())
	for off := 0; off+protocol.NameFieldLen <= len(raw); off += protocol.NameFieldLen {
		field := raw[off : off+protocol.NameFieldLen]
		if i := strings.IndexByte(string(field), 0); i >= 0 {
			names = append(names, string(field[:i]))
		} else {
			names = append(names, string(field))
		}
	}
	return c.JSON(http.StatusOK, usersResponse{Online: names})
}

type fileEntry struct {
	Name      string `json:"name"`
	Sender    string `json:"sender"`
	SizeBytes int64  `json:"size_bytes"`
	CreatedAt string `json:"created_at"`
}

func (s *Server) handleFileList(c echo.Context) error {
	rows, err := s.meta.ListAttachments(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("list attachments: %v", err))
	}
	out := make([]fileEntry, 0, len(rows))
	for _, a := range rows {
		out = append(out, fileEntry{
			Name:      a.Name,
			Sender:    a.Sender,
			SizeBytes: a.SizeBytes,
			CreatedAt: a.CreatedAt.Format(time.RFC3339Nano),
		})
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleFileDownload(c echo.Context) error {
	name := strings.TrimSpace(c.Param("name"))
	if name == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "attachment name is required")
	}

	data, err := s.files.Read(name)
	if err != nil {
		if errors.Is(err, filestore.ErrNoSuchFile) {
			return echo.NewHTTPError(http.StatusNotFound, "attachment not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("read attachment: %v", err))
	}

	c.Response().Header().Set(echo.HeaderContentLength, strconv.Itoa(len(data)))
	c.Response().Header().Set(
		echo.HeaderContentDisposition,
		fmt.Sprintf(`attachment; filename="%s"`, safeFilename(name)),
	)
	return c.Blob(http.StatusOK, "application/octet-stream", data)
}

func safeFilename(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "attachment"
	}
	name = strings.ReplaceAll(name, `"`, "_")
	name = strings.ReplaceAll(name, "\\", "_")
	return name
}
