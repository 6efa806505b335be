package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/opstracker/opstracker-backend-go/internal/service"
	"github.com/opstracker/opstracker-backend-go/internal/upstream"
)

// Error bodies of the alert API. Clients match on these strings.
const (
	MsgAlertNotFound = "Alert not found"
	MsgTokenMissing  = "Authorization token is missing. Please authenticate first."
	MsgAuthFailed    = "Failed to authenticate with Constellation."
	MsgTokenRejected = "Authorization token is expired or invalid."
	MsgAlarmsFailed  = "Failed to retrieve alarms."
	MsgSelfFailed    = "Failed to get user info"
)

// AlertHandler handles HTTP requests of the alert API
type AlertHandler struct {
	alertService   *service.AlertService
	notFoundStatus int
}

// NewAlertHandler creates a new alert handler. notFoundStatus is sent with
// MsgAlertNotFound; zero means 404.
func NewAlertHandler(alertService *service.AlertService, notFoundStatus int) *AlertHandler {
	if notFoundStatus == 0 {
		notFoundStatus = http.StatusNotFound
	}
	return &AlertHandler{
		alertService:   alertService,
		notFoundStatus: notFoundStatus,
	}
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Root handles GET /
func (h *AlertHandler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Welcome to the Alert API!"})
}

// List handles GET /alerts
func (h *AlertHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, h.alertService.List())
}

// Get handles GET /alerts/:id
func (h *AlertHandler) Get(c *gin.Context) {
	alert, err := h.alertService.Get(c.Param("id"))
	if err != nil {
		c.JSON(h.notFoundStatus, gin.H{"error": MsgAlertNotFound})
		return
	}
	c.JSON(http.StatusOK, alert)
}

// Authenticate handles POST /auth-obvious
func (h *AlertHandler) Authenticate(c *gin.Context) {
	var req credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	token, err := h.alertService.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": MsgAuthFailed, "details": details(err)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

// RequireToken rejects upstream calls made before any successful sign-in
func (h *AlertHandler) RequireToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !h.alertService.HasToken() {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": MsgTokenMissing})
			return
		}
		c.Next()
	}
}

// Alarms handles GET /alarms
func (h *AlertHandler) Alarms(c *gin.Context) {
	alarms, err := h.alertService.Alarms(c.Request.Context(), c.Request.URL.Query())
	if err != nil {
		if upstream.IsUnauthorized(err) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": MsgTokenRejected, "details": details(err)})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": MsgAlarmsFailed, "details": details(err)})
		return
	}
	c.JSON(http.StatusOK, alarms)
}

// Self handles GET /self
func (h *AlertHandler) Self(c *gin.Context) {
	username, err := h.alertService.Self(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": MsgSelfFailed, "details": details(err)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"username": username})
}

// details prefers the upstream body, embedded as JSON when it is JSON.
func details(err error) interface{} {
	var se *upstream.StatusError
	if errors.As(err, &se) && len(se.Body) > 0 {
		if json.Valid(se.Body) {
			return json.RawMessage(se.Body)
		}
		return string(se.Body)
	}
	return err.Error()
}
