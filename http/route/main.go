package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/mosaiclabs/mosaic-media-service/http/controller"
	middlewares "github.com/mosaiclabs/mosaic-media-service/http/middleware"
)

func SetupRouter(ctrl *controller.Controller) *gin.Engine {
	r := gin.Default()
	middles, err := middlewares.NewMiddlewares(ctrl)
	if err != nil {
		panic(err)
	}

	r.Use(middles.CORSMiddleware)

	apiRoutes := r.Group("/api/v1/media")
	{
		apiRoutes.Use(middles.AuthMiddleware)

		uploadRoutes := apiRoutes.Group("/uploads")
		{
			uploadRoutes.POST("/init", ctrl.InitUpload)
			uploadRoutes.POST("/action", ctrl.HandleUploadAction)
			uploadRoutes.GET("/:upload_id/progress", ctrl.GetUploadProgress)
		}

		assetRoutes := apiRoutes.Group("/assets")
		{
			assetRoutes.GET("/:id/download", ctrl.DownloadAsset)
		}

		jobRoutes := apiRoutes.Group("/jobs")
		{
			jobRoutes.GET("/:id", ctrl.GetJob)
		}

		eventRoutes := apiRoutes.Group("/events")
		{
			eventRoutes.GET("", ctrl.StreamEvents)
			eventRoutes.POST("/:stream_id/rooms", ctrl.UpdateStreamRooms)
		}
	}
	return r
}
