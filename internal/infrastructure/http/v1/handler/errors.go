package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mapic/tilecube/internal/apperr"
)

var (
	ErrFailedToDecodeRequestBody = errors.New("failed to decode request body")
	InternalServerError          = errors.New("server encountered a problem and could not process your request")
)

// respondError translates domain errors into the API's error envelope.
// Validation and not-found errors carry a stable error_code clients
// switch on; everything else is opaque.
func (h *Handler) respondError(c *gin.Context, err error) {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		switch ae.Kind {
		case apperr.KindValidation:
			c.JSON(http.StatusBadRequest, gin.H{"error": ae.Msg, "error_code": ae.Code})
		case apperr.KindNotFound:
			c.JSON(http.StatusNotFound, gin.H{"error": ae.Msg, "error_code": ae.Code})
		case apperr.KindUpstream:
			c.JSON(http.StatusBadGateway, gin.H{"error": ae.Msg, "error_code": ae.Code})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": ae.Msg, "error_code": ae.Code})
		}
		return
	}

	requestLogger(c).Error("unhandled error", "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": InternalServerError.Error()})
}
