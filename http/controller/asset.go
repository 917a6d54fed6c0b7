package controller

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mosaiclabs/mosaic-media-service/http/controller/dto"
	"github.com/mosaiclabs/mosaic-media-service/utils"
	"gorm.io/gorm"
)

// DownloadAsset returns a presigned, expiring download URL for an owned
// asset. The service never proxies object bytes on the download path.
func (ctrl *Controller) DownloadAsset(c *gin.Context) {
	ctx := c.Request.Context()

	ownerID, err := utils.GetUserIDFromContext(c)
	if err != nil {
		utils.JSON401(c, "Unauthorized: user_id not found")
		return
	}

	assetID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.JSON400(c, "Invalid asset id format")
		return
	}

	asset, err := ctrl.Repository.AssetRepo.FindByIDAndOwner(ctx, assetID, ownerID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			utils.JSON404(c, "Asset not found")
			return
		}
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[Asset] Failed to load asset %s: %v", assetID, err)
		utils.JSON500(c, "Failed to load asset")
		return
	}

	url, err := ctrl.Uploads.DownloadURL(ctx, asset)
	if err != nil {
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[Asset] Failed to presign download for %s: %v", assetID, err)
		respondServiceError(c, err)
		return
	}

	utils.JSON200(c, dto.DownloadURLResponse{
		AssetID:   assetID.String(),
		URL:       url,
		ExpiresIn: ctrl.Config.EnvConfig.Upload.DownloadURLTTL.String(),
	})
}

// GetJob reports the authoritative job state. Reconnecting event-stream
// clients call this to catch up on anything the stream dropped.
func (ctrl *Controller) GetJob(c *gin.Context) {
	ctx := c.Request.Context()

	ownerID, err := utils.GetUserIDFromContext(c)
	if err != nil {
		utils.JSON401(c, "Unauthorized: user_id not found")
		return
	}

	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.JSON400(c, "Invalid job id format")
		return
	}

	job, err := ctrl.Jobs.GetJob(ctx, jobID, ownerID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	utils.JSON200(c, job)
}
