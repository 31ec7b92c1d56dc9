package middleware

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/techpack/backend/internal/infrastructure/admission"
	"github.com/techpack/backend/internal/infrastructure/telemetry"
)

// Admitter decides whether a caller may issue another request of a class
type Admitter interface {
	TryAdmit(ctx context.Context, identity string, class admission.Class) (admission.Decision, error)
}

var _ Admitter = (*admission.Controller)(nil)

// Admission counts the request against the caller's budget for class and
// answers 429 with Retry-After once it is spent. It must run after Identity.
func Admission(controller Admitter, class admission.Class) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(RequestClassKey, string(class))

		decision, err := controller.TryAdmit(c.Request.Context(), c.GetString(SubjectKey), class)
		if err != nil {
			abortWithError(c, err)
			return
		}

		h := c.Writer.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))

		if err := decision.Err(); err != nil {
			abortWithError(c, err)
			return
		}

		telemetry.WithProfilingLabels(c.Request.Context(),
			map[string]string{telemetry.ProfilingLabelClass: string(class)},
			func(ctx context.Context) {
				c.Request = c.Request.WithContext(ctx)
				c.Next()
			})
	}
}
