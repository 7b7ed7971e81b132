package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/vm-affekt/streamfetch/internal/logging"
)

const requestIDHeader = "X-Request-ID"

func genRequestID() string {
	rid, _ := uuid.NewRandom()
	return rid.String()
}

// requestContext attaches a request id and a logger carrying it to the
// request context.
func requestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		rqID := c.GetHeader(requestIDHeader)
		if _, err := uuid.Parse(rqID); err != nil {
			rqID = genRequestID()
		}
		ctx := logging.NewContextS(c.Request.Context(),
			"request_id", rqID,
			"remote_addr", c.ClientIP(),
		)
		c.Request = c.Request.WithContext(ctx)
		c.Header(requestIDHeader, rqID)
		c.Next()
	}
}

func recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			if r == http.ErrAbortHandler {
				panic(r)
			}
			log := logging.FromContextS(c.Request.Context())
			log.With("recovered_obj", r).Error("!!! A PANIC occurred while handling request !!! See recovered object in recovered_obj!")
			if !c.Writer.Written() {
				c.AbortWithStatusJSON(http.StatusInternalServerError, errorBody{Message: "Internal Server Error"})
				return
			}
			c.Abort()
		}()
		c.Next()
	}
}

func accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		log := logging.FromContextS(c.Request.Context())
		log.Infof("Received request %s %s", c.Request.Method, c.Request.URL.RequestURI())
		c.Next()
		log.Infow("Request is proceeded.",
			"status", c.Writer.Status(),
			"response_bytes", c.Writer.Size(),
			"total_elapsed_time", time.Since(start),
		)
	}
}
