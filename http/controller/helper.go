package controller

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/mosaiclabs/mosaic-media-service/service"
	"github.com/mosaiclabs/mosaic-media-service/utils"
)

// respondServiceError maps the service error taxonomy onto HTTP status
// codes. Unrecognized errors become a 500 without leaking internals.
func respondServiceError(c *gin.Context, err error) {
	var validationErr *service.ValidationError
	if errors.As(err, &validationErr) {
		utils.JSON400(c, validationErr.Error())
		return
	}

	var notFoundErr *service.NotFoundError
	if errors.As(err, &notFoundErr) {
		utils.JSON404(c, notFoundErr.Error())
		return
	}

	var conflictErr *service.ConflictError
	if errors.As(err, &conflictErr) {
		if conflictErr.TotalParts > 0 {
			utils.JSON409(c, gin.H{
				"reason":         conflictErr.Reason,
				"uploaded_parts": conflictErr.UploadedParts,
				"total_parts":    conflictErr.TotalParts,
			})
			return
		}
		utils.JSON409(c, conflictErr.Error())
		return
	}

	var storageErr *service.StorageError
	if errors.As(err, &storageErr) {
		if storageErr.Retryable {
			utils.JSON502(c, "Storage operation failed, please retry")
			return
		}
		utils.JSON502(c, "Storage operation failed")
		return
	}

	var authErr *service.AuthError
	if errors.As(err, &authErr) {
		utils.JSON403(c, authErr.Error())
		return
	}

	utils.JSON500(c, "Internal server error")
}
