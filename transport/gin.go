package transport

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/felixgeelhaar/onion/compose"
)

const ginContextKey = "onion.gin"

// Gin adapts an HTTP pipeline to a gin middleware. The remaining gin
// handlers form the pipeline tail and see the context the stages derived.
// The tail reports the last error gin handlers recorded with c.Error.
//
// A pipeline that never reaches its tail aborts the gin chain, so a stage
// answering early stops the route handlers too. A failing pipeline also
// records its error on the gin context and, if nothing was written yet,
// sends the mapped error status and body.
func Gin(p compose.Pipeline[*Request]) gin.HandlerFunc {
	return func(c *gin.Context) {
		req := NewRequest(c.Writer, c.Request)
		req.Set(ginContextKey, c)

		reached := false
		tail := func() error {
			reached = true
			c.Request = c.Request.WithContext(req.Context())
			c.Next()
			if last := c.Errors.Last(); last != nil {
				return last.Err
			}
			return nil
		}

		err := p(req, tail)
		if !reached {
			c.Abort()
		}
		if err == nil {
			return
		}

		if last := c.Errors.Last(); last == nil || !errors.Is(last.Err, err) {
			_ = c.Error(err)
		}
		c.Abort()
		if !req.Written() && !c.Writer.Written() {
			WriteError(req, err)
		}
	}
}

// GinContext returns the gin context a Request was created from.
func GinContext(req *Request) (*gin.Context, bool) {
	v, ok := req.Get(ginContextKey)
	if !ok {
		return nil, false
	}
	c, ok := v.(*gin.Context)
	return c, ok
}
