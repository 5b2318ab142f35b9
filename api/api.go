/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/paylancer/paylancer"
	"github.com/paylancer/paylancer/api/middleware"
	"github.com/paylancer/paylancer/config"
	"github.com/paylancer/paylancer/internal/apierror"
)

type Api struct {
	paylancer *paylancer.Paylancer
	router    *gin.Engine
}

func (a Api) Router() *gin.Engine {
	auth := middleware.NewAuthMiddleware(a.paylancer)

	a.router.GET("/tokens", a.ListTokens)

	jobs := a.router.Group("/jobs", auth.Internal())
	jobs.POST("", a.CreateJob)
	jobs.GET("", a.ListJobs)
	jobs.GET("/status", a.GetJobStatus)
	jobs.GET("/:id", a.GetJob)
	jobs.GET("/:id/execution", a.GetJobExecution)
	jobs.PATCH("/:id", a.TransitionJob)

	admin := a.router.Group("/admin", auth.Admin())
	admin.POST("/jobs/cleanup", a.CleanupJobs)
	admin.GET("/webhooks/failed", a.ListFailedWebhooks)
	admin.POST("/webhooks/failed/retry", a.RetryFailedWebhooks)
	admin.GET("/api-keys", a.ListAPIKeys)
	admin.POST("/api-keys", a.CreateAPIKey)
	admin.PATCH("/api-keys/:id", a.UpdateAPIKey)
	admin.DELETE("/api-keys/:id", a.DeleteAPIKey)

	// Developer routes authenticate each request by wallet signature.
	dev := a.router.Group("/dev")
	dev.GET("/api-keys", a.ListDeveloperAPIKeys)
	dev.POST("/api-keys", a.CreateDeveloperAPIKey)
	dev.PATCH("/api-keys/:id", a.UpdateDeveloperAPIKey)

	return a.router
}

func NewAPI(p *paylancer.Paylancer) *Api {
	gin.SetMode(gin.ReleaseMode)
	conf, err := config.Fetch()
	if err != nil {
		return nil
	}
	r := gin.Default()
	r.Use(otelgin.Middleware("paylancer"))
	r.Use(middleware.RateLimitMiddleware(conf))

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, "server running...")
	})

	return &Api{paylancer: p, router: r}
}

// respondError writes err with the status its code maps to. Errors that do
// not carry an API code are logged and reported generically.
func respondError(c *gin.Context, err error) {
	apiErr, ok := apierror.As(err)
	if !ok {
		logrus.WithError(err).WithField("path", c.FullPath()).Error("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": apiErr.Message})
}

func requireParam(c *gin.Context, name string) (string, bool) {
	value, passed := c.Params.Get(name)
	if !passed || value == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " is required. pass " + name + " in the route /:" + name})
		return "", false
	}
	return value, true
}
