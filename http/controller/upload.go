package controller

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mosaiclabs/mosaic-media-service/http/controller/dto"
	"github.com/mosaiclabs/mosaic-media-service/service"
	"github.com/mosaiclabs/mosaic-media-service/utils"
	"gorm.io/datatypes"
)

// InitUpload creates an upload session and hands back the presigned URL(s)
// the client uploads through.
func (ctrl *Controller) InitUpload(c *gin.Context) {
	ctx := c.Request.Context()

	ownerID, err := utils.GetUserIDFromContext(c)
	if err != nil {
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[Upload] user_id not found in context")
		utils.JSON401(c, "Unauthorized: user_id not found")
		return
	}

	var req dto.InitUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[Upload] Failed to bind init request: %v", err)
		utils.JSON400(c, "Invalid request payload")
		return
	}

	projectID, err := uuid.Parse(req.ProjectID)
	if err != nil {
		utils.JSON400(c, "Invalid project_id format")
		return
	}

	descriptor, err := ctrl.Uploads.CreateSession(ctx, ownerID, service.CreateSessionInput{
		ProjectID:   projectID,
		FileName:    req.FileName,
		FileSize:    req.FileSize,
		ContentType: req.ContentType,
		StyleParams: datatypes.JSON(req.StyleParams),
		Intensity:   req.Intensity,
	})
	if err != nil {
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[Upload] Failed to create session: %v", err)
		respondServiceError(c, err)
		return
	}

	utils.JSON201(c, descriptor)
}

// HandleUploadAction is the multi-action endpoint for a live session:
// register an uploaded part, complete, query progress or abort.
func (ctrl *Controller) HandleUploadAction(c *gin.Context) {
	ctx := c.Request.Context()

	ownerID, err := utils.GetUserIDFromContext(c)
	if err != nil {
		utils.JSON401(c, "Unauthorized: user_id not found")
		return
	}

	var req dto.UploadActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		ctrl.Infra.Logger.ErrorWithContextf(ctx, err, "[Upload] Failed to bind action request: %v", err)
		utils.JSON400(c, "Invalid request payload")
		return
	}

	uploadID, err := uuid.Parse(req.UploadID)
	if err != nil {
		utils.JSON400(c, "Invalid upload_id format")
		return
	}

	switch req.Action {
	case dto.UploadActionRegister:
		progress, err := ctrl.Uploads.RegisterPart(ctx, uploadID, ownerID, req.PartNumber, req.ETag, req.SizeBytes)
		if err != nil {
			respondServiceError(c, err)
			return
		}
		utils.JSON200(c, dto.RegisterPartResponse{
			Success:       true,
			UploadedParts: progress.UploadedParts,
			TotalParts:    progress.TotalParts,
			Progress:      progress.Percent,
		})

	case dto.UploadActionComplete:
		asset, err := ctrl.Uploads.Complete(ctx, uploadID, ownerID)
		if err != nil {
			respondServiceError(c, err)
			return
		}
		utils.JSON200(c, dto.CompleteUploadResponse{
			Success: true,
			AssetID: asset.ID.String(),
			Asset:   asset,
		})

	case dto.UploadActionProgress:
		progress, err := ctrl.Uploads.GetProgress(ctx, uploadID, ownerID)
		if err != nil {
			respondServiceError(c, err)
			return
		}
		utils.JSON200(c, dto.UploadProgressResponse{
			UploadID:      uploadID.String(),
			UploadedParts: progress.UploadedParts,
			TotalParts:    progress.TotalParts,
			Progress:      progress.Percent,
		})

	case dto.UploadActionAbort:
		if err := ctrl.Uploads.Abort(ctx, uploadID, ownerID); err != nil {
			respondServiceError(c, err)
			return
		}
		utils.JSON200(c, dto.AbortUploadResponse{
			Success: true,
			Status:  "cancelled",
		})

	default:
		utils.JSON400(c, "Unknown action")
	}
}

// GetUploadProgress is the polling alias for the progress action.
func (ctrl *Controller) GetUploadProgress(c *gin.Context) {
	ctx := c.Request.Context()

	ownerID, err := utils.GetUserIDFromContext(c)
	if err != nil {
		utils.JSON401(c, "Unauthorized: user_id not found")
		return
	}

	uploadID, err := uuid.Parse(c.Param("upload_id"))
	if err != nil {
		utils.JSON400(c, "Invalid upload_id format")
		return
	}

	progress, err := ctrl.Uploads.GetProgress(ctx, uploadID, ownerID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	utils.JSON200(c, dto.UploadProgressResponse{
		UploadID:      uploadID.String(),
		UploadedParts: progress.UploadedParts,
		TotalParts:    progress.TotalParts,
		Progress:      progress.Percent,
	})
}
