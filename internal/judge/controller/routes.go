package controller

import "github.com/gin-gonic/gin"

// RegisterRoutes mounts the judge API under /api/v1/judge.
func RegisterRoutes(router gin.IRouter, judge *JudgeController, contests *ContestController) {
	api := router.Group("/api/v1/judge")

	api.POST("/submissions", judge.Submit)
	api.GET("/submissions/:id", judge.GetStatus)
	api.GET("/submissions/:id/watch", judge.Watch)

	api.GET("/contests/:id/ranking", contests.Ranking)
	api.GET("/contests/:id/phase", contests.Phase)
	api.GET("/problems/:id", contests.Problem)
}
