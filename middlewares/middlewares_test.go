package middlewares

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/DhruviKhanpara/LMS-sub001/utils"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type identity struct {
	UserId int
	Name   string
	Role   string
	Staff  bool
}

func newAuthRouter(extra ...gin.HandlerFunc) (*gin.Engine, *identity) {
	seen := &identity{}
	r := gin.New()
	r.Use(AuthMiddleware())
	handlers := append(extra, func(c *gin.Context) {
		ctx := c.Request.Context()
		seen.UserId, _ = utils.GetUserIdFromContext(ctx)
		seen.Name, _ = utils.GetUserNameFromContext(ctx)
		seen.Role, _ = utils.GetRoleFromContext(ctx)
		seen.Staff = utils.IsStaffContext(ctx)
		c.Status(http.StatusNoContent)
	})
	r.GET("/x", handlers...)
	return r, seen
}

func do(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	token, err := utils.JwtGenerate(7, "Ana", utils.RoleStaff)
	require.NoError(t, err)

	t.Run("valid token", func(t *testing.T) {
		r, seen := newAuthRouter()
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set("Authorization", "Bearer "+token)

		w := do(r, req)
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, identity{UserId: 7, Name: "Ana", Role: utils.RoleStaff, Staff: true}, *seen)
	})

	t.Run("anonymous passes through", func(t *testing.T) {
		r, seen := newAuthRouter()
		w := do(r, httptest.NewRequest(http.MethodGet, "/x", nil))
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Zero(t, seen.UserId)
		assert.False(t, seen.Staff)
	})

	for name, header := range map[string]string{
		"garbage token":  "Bearer not-a-jwt",
		"missing scheme": token,
	} {
		t.Run(name, func(t *testing.T) {
			r, _ := newAuthRouter()
			req := httptest.NewRequest(http.MethodGet, "/x", nil)
			req.Header.Set("Authorization", header)
			w := do(r, req)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

func TestRequireUserAndStaff(t *testing.T) {
	member, err := utils.JwtGenerate(3, "Bo", utils.RoleMember)
	require.NoError(t, err)
	staff, err := utils.JwtGenerate(4, "Cy", utils.RoleAdmin)
	require.NoError(t, err)

	tests := []struct {
		name   string
		guard  gin.HandlerFunc
		token  string
		expect int
	}{
		{"user route anonymous", RequireUser(), "", http.StatusUnauthorized},
		{"user route member", RequireUser(), member, http.StatusNoContent},
		{"staff route member", RequireStaff(), member, http.StatusForbidden},
		{"staff route admin", RequireStaff(), staff, http.StatusNoContent},
		{"staff route anonymous", RequireStaff(), "", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := newAuthRouter(tt.guard)
			req := httptest.NewRequest(http.MethodGet, "/x", nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			assert.Equal(t, tt.expect, do(r, req).Code)
		})
	}
}

func TestCorrelationMiddleware(t *testing.T) {
	var got string
	r := gin.New()
	r.Use(CorrelationMiddleware())
	r.GET("/x", func(c *gin.Context) {
		got, _ = utils.GetCorrelationIdFromContext(c.Request.Context())
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(CorrelationHeader, "abc-123")
	w := do(r, req)
	assert.Equal(t, "abc-123", got)
	assert.Equal(t, "abc-123", w.Header().Get(CorrelationHeader))

	w = do(r, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Len(t, got, 36)
	assert.Equal(t, got, w.Header().Get(CorrelationHeader))
}

func TestErrorHandler(t *testing.T) {
	type payload struct {
		Email string `validate:"required,email"`
	}
	validationErr := validator.New().Struct(payload{})

	tests := []struct {
		name   string
		err    error
		status int
		body   string
		logged bool
	}{
		{"not found", utils.NewNotFoundError("book %d not found", 9), http.StatusNotFound, `{"error":"book 9 not found"}`, false},
		{"bad request", utils.NewBadRequestError("no copies"), http.StatusBadRequest, `{"error":"no copies"}`, false},
		{"conflict", utils.NewConflictError("already reserved"), http.StatusConflict, `{"error":"already reserved"}`, false},
		{"stale write", utils.ErrConcurrencyConflict, http.StatusConflict, `{"error":"` + utils.ErrConcurrencyConflict.Error() + `"}`, false},
		{"validation", validationErr, http.StatusBadRequest, `{"error":"validation failed","fields":{"Email":"required"}}`, false},
		{"unexpected", errors.New("dial tcp: refused"), http.StatusInternalServerError, `{"error":"internal server error"}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, hook := test.NewNullLogger()
			r := gin.New()
			r.Use(ErrorHandler(logger))
			r.GET("/x", func(c *gin.Context) { _ = c.Error(tt.err) })

			w := do(r, httptest.NewRequest(http.MethodGet, "/x", nil))
			assert.Equal(t, tt.status, w.Code)
			assert.JSONEq(t, tt.body, w.Body.String())
			if tt.logged {
				require.Len(t, hook.Entries, 1)
				assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
				assert.Equal(t, "dial tcp: refused", hook.LastEntry().Message)
			} else {
				assert.Empty(t, hook.Entries)
			}
		})
	}
}

func TestErrorHandler_LeavesWrittenResponses(t *testing.T) {
	logger, _ := test.NewNullLogger()
	r := gin.New()
	r.Use(ErrorHandler(logger))
	r.GET("/x", func(c *gin.Context) {
		_ = c.Error(errors.New("late"))
		c.JSON(http.StatusAccepted, gin.H{"ok": true})
	})
	w := do(r, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestRateLimiter(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDRESS")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDRESS not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	r := gin.New()
	r.Use(NewRateLimiter(client, 2, time.Minute).Middleware())
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	ip := "10.0.0." + strconv.Itoa(int(time.Now().UnixNano()%200)+1)
	require.NoError(t, client.Del(context.Background(), "ratelimit:ip:"+ip).Err())

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.RemoteAddr = ip + ":1234"
		codes = append(codes, do(r, req).Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}
