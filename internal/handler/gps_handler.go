package handler

import (
	"encoding/csv"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jszwec/csvutil"

	"github.com/opstracker/opstracker-backend-go/internal/models"
	"github.com/opstracker/opstracker-backend-go/internal/service"
	"github.com/opstracker/opstracker-backend-go/pkg/response"
)

// GpsHandler handles HTTP requests for stored telemetry
type GpsHandler struct {
	gpsService *service.GpsService
}

// NewGpsHandler creates a new gps handler
func NewGpsHandler(gpsService *service.GpsService) *GpsHandler {
	return &GpsHandler{
		gpsService: gpsService,
	}
}

// Latest handles GET /gps_data
//
// The body is a bare JSON array of rows keyed by column name.
func (h *GpsHandler) Latest(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > service.MaxLatestLimit {
			response.BadRequest(c, "limit must be an integer between 1 and 1000")
			return
		}
		limit = n
	}

	records, err := h.gpsService.Latest(c.Request.Context(), limit)
	if err != nil {
		response.InternalError(c, err.Error())
		return
	}

	c.JSON(http.StatusOK, records)
}

// Track handles GET /gps_data/:uid/track
func (h *GpsHandler) Track(c *gin.Context) {
	summary, err := h.gpsService.Track(c.Request.Context(), c.Param("uid"))
	if errors.Is(err, service.ErrTrackNotFound) {
		response.NotFound(c, "No data for device")
		return
	}
	if err != nil {
		response.InternalError(c, err.Error())
		return
	}

	response.Success(c, summary)
}

// ExportCSV handles GET /export/gps_data.csv
func (h *GpsHandler) ExportCSV(c *gin.Context) {
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", `attachment; filename="gps_data.csv"`)
	c.Status(http.StatusOK)

	w := csv.NewWriter(c.Writer)
	w.Comma = ';'
	enc := csvutil.NewEncoder(w)
	if err := enc.EncodeHeader(models.GpsRecord{}); err != nil {
		c.Error(err)
		return
	}

	// Headers are already sent, so a failure part way only truncates the body.
	err := h.gpsService.Export(c.Request.Context(), func(rec models.GpsRecord) error {
		return enc.Encode(rec)
	})
	w.Flush()
	if err == nil {
		err = w.Error()
	}
	if err != nil {
		c.Error(err)
	}
}
