package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/vm-affekt/streamfetch/internal/app"
	"github.com/vm-affekt/streamfetch/internal/logging"
	"github.com/vm-affekt/streamfetch/internal/platform"
	"github.com/vm-affekt/streamfetch/internal/proxy"
)

type errorBody struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

func writeError(c *gin.Context, appErr *app.Error) {
	c.JSON(appErr.HTTPStatus(), errorBody{
		Message: appErr.UserMessage,
		Error:   appErr.Diagnostic,
	})
}

func (s *Server) handleDownload(c *gin.Context) {
	ctx := c.Request.Context()
	req, appErr := s.parseRequest(ctx, c.Query("url"), c.Query("format"))
	if appErr != nil {
		logging.FromContextS(ctx).Infof("Rejected download request: %v", appErr)
		writeError(c, appErr)
		return
	}

	ctx, log := logging.NewContextSL(ctx,
		"video_link", req.SourceURL,
		"platform", req.Platform.String(),
		"format", req.Format.String(),
	)
	ctx, cancel := context.WithTimeoutCause(ctx, s.downloadTimeout, app.ErrTimeout)
	defer cancel()

	job, err := s.invoker.Invoke(ctx, req)
	if err != nil {
		appErr := app.AsError(ctx, err)
		log.Errorf("Failed to start extraction: %v", appErr)
		if appErr.Reportable() {
			writeError(c, appErr)
		}
		return
	}

	res := s.proxy.Serve(ctx, req, job, c.Writer)
	switch {
	case res.Err == nil:
	case !res.HeadersSent:
		if res.Err.Reportable() {
			writeError(c, res.Err)
		}
	case res.State == proxy.StateFailed && !res.Aborted:
		// resets the stream where the connection can't be hijacked (HTTP/2)
		panic(http.ErrAbortHandler)
	}
}

// parseRequest validates the query before anything is spawned.
func (s *Server) parseRequest(ctx context.Context, rawURL, rawFormat string) (app.DownloadRequest, *app.Error) {
	link := strings.TrimSpace(rawURL)
	if link == "" {
		return app.DownloadRequest{}, app.NewError(app.KindInvalidInput, "Please provide a video URL")
	}
	p, err := platform.Detect(link)
	if err != nil {
		return app.DownloadRequest{}, app.AsError(ctx, err)
	}

	if s.resolver != nil {
		resolved, err := s.resolver.Resolve(ctx, link)
		if err != nil {
			logging.FromContextS(ctx).Warnf("Failed to resolve %q, using it as is: %v", link, err)
		} else if resolved != link {
			rp, err := platform.Detect(resolved)
			if err != nil {
				return app.DownloadRequest{}, app.AsError(ctx, err)
			}
			link, p = resolved, rp
		}
	}

	return app.DownloadRequest{
		SourceURL: link,
		Format:    app.ParseFormat(rawFormat),
		Platform:  p,
	}, nil
}
