package api

import (
	"bytes"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/unseen/internal/report"
)

// activePage is the page id that targets the active page.
const activePage = "active"

// defaultHistoryLimit is used when the limit query parameter is absent.
const defaultHistoryLimit = 50

type addContainerRequest struct {
	Name       string `json:"name"`
	Persistent bool   `json:"persistent"`
}

type torRequest struct {
	Enabled *bool `json:"enabled"`
}

type newPageRequest struct {
	Container string `json:"container"`
	URL       string `json:"url"`
}

type navigateRequest struct {
	Input string `json:"input"`
}

type permissionRequest struct {
	Capability string `json:"capability"`
	Allow      *bool  `json:"allow"`
}

// loadResponse reports an operation that started a page load. A failed load
// still leaves the page open, so the failure is part of a 200 response.
type loadResponse struct {
	ID    string `json:"id,omitempty"`
	URL   string `json:"url,omitempty"`
	Error string `json:"error,omitempty"`
}

// loadFailed reports whether err is a page load failure rather than a
// rejected request.
func loadFailed(err error) bool {
	return err != nil && statusOf(err) == http.StatusBadGateway
}

func pageID(c *gin.Context) string {
	id := c.Param("id")
	if id == activePage {
		return ""
	}
	return id
}

func (s *Server) tabState(c *gin.Context) {
	c.JSON(http.StatusOK, s.browser.TabState())
}

func (s *Server) listContainers(c *gin.Context) {
	c.JSON(http.StatusOK, s.browser.Containers())
}

func (s *Server) addContainer(c *gin.Context) {
	var req addContainerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid container request")
		return
	}
	ct, err := s.browser.AddContainer(c.Request.Context(), req.Name, req.Persistent)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, ct)
}

func (s *Server) setContainerTor(c *gin.Context) {
	var req torRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Enabled == nil {
		badRequest(c, "enabled must be true or false")
		return
	}
	res, err := s.browser.SetContainerTor(c.Request.Context(), c.Param("name"), *req.Enabled)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) history(c *gin.Context) {
	limit := defaultHistoryLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			badRequest(c, "limit must be a positive integer")
			return
		}
		limit = n
	}
	visits, err := s.browser.History(c.Request.Context(), c.Param("name"), limit)
	if err != nil {
		abort(c, err)
		return
	}
	if visits == nil {
		c.JSON(http.StatusOK, []any{})
		return
	}
	c.JSON(http.StatusOK, visits)
}

func (s *Server) newPage(c *gin.Context) {
	var req newPageRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid page request")
			return
		}
	}
	id, err := s.browser.NewPage(c.Request.Context(), req.Container, req.URL)
	if id == "" || (err != nil && !loadFailed(err)) {
		abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, loadResponse{ID: id, Error: errString(err)})
}

func (s *Server) closePage(c *gin.Context) {
	if err := s.browser.ClosePage(c.Param("id")); err != nil {
		abort(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) activatePage(c *gin.Context) {
	if err := s.browser.ActivatePage(c.Param("id")); err != nil {
		abort(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) navigate(c *gin.Context) {
	var req navigateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid navigation request")
		return
	}
	target, err := s.browser.Navigate(c.Request.Context(), pageID(c), req.Input)
	if err != nil && !loadFailed(err) {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, loadResponse{URL: target, Error: errString(err)})
}

func (s *Server) back(c *gin.Context) {
	s.respondLoad(c, s.browser.Back(c.Request.Context(), pageID(c)))
}

func (s *Server) forward(c *gin.Context) {
	s.respondLoad(c, s.browser.Forward(c.Request.Context(), pageID(c)))
}

func (s *Server) reload(c *gin.Context) {
	s.respondLoad(c, s.browser.Reload(c.Request.Context(), pageID(c)))
}

func (s *Server) respondLoad(c *gin.Context, err error) {
	if err != nil && !loadFailed(err) {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, loadResponse{Error: errString(err)})
}

func (s *Server) listPermissions(c *gin.Context) {
	c.JSON(http.StatusOK, s.browser.Permissions())
}

func (s *Server) getPermission(c *gin.Context) {
	c.JSON(http.StatusOK, s.browser.Permission(c.Param("host")))
}

func (s *Server) setPermission(c *gin.Context) {
	var req permissionRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Allow == nil {
		badRequest(c, "capability and allow are required")
		return
	}
	host := c.Param("host")
	if err := s.browser.SetPermission(host, req.Capability, *req.Allow); err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, s.browser.Permission(host))
}

func (s *Server) probeAll(c *gin.Context) {
	c.JSON(http.StatusOK, s.browser.ProbeAll(c.Request.Context()))
}

func (s *Server) probe(c *gin.Context) {
	c.JSON(http.StatusOK, s.browser.Probe(c.Request.Context(), c.Param("name")))
}

func (s *Server) torStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.browser.TorStatus())
}

func (s *Server) startTor(c *gin.Context) {
	if err := s.browser.StartTor(c.Request.Context()); err != nil {
		c.JSON(statusOf(err), gin.H{"error": err.Error(), "status": s.browser.TorStatus()})
		return
	}
	c.JSON(http.StatusOK, s.browser.TorStatus())
}

func (s *Server) stopTor(c *gin.Context) {
	if err := s.browser.StopTor(); err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, s.browser.TorStatus())
}

// report renders the status report as json (default), markdown or text.
func (s *Server) report(c *gin.Context) {
	rep := s.browser.Report()

	var (
		buf         bytes.Buffer
		w           report.Writer
		contentType string
	)
	switch c.DefaultQuery("format", "json") {
	case "json":
		c.JSON(http.StatusOK, rep)
		return
	case "markdown", "md":
		w = report.NewMarkdownWriter(&buf)
		contentType = "text/markdown; charset=utf-8"
	case "text":
		w = report.NewSimpleWriter(&buf, report.WithVerbose(true))
		contentType = "text/plain; charset=utf-8"
	default:
		badRequest(c, "format must be json, markdown or text")
		return
	}

	if _, err := w.Write(rep); err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, contentType, buf.Bytes())
}

func (s *Server) policyStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.browser.PolicyStats())
}
