/*
Copyright 2025 SuperCV Authors.

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

	"github.com/supercvhq/supercv"
	"github.com/supercvhq/supercv/api/middleware"
	"github.com/supercvhq/supercv/config"
	"github.com/supercvhq/supercv/internal/apierror"
)

type Api struct {
	service *supercv.SuperCV
	router  *gin.Engine
}

func (a Api) Router() *gin.Engine {
	router := a.router

	router.POST("/cv/analyze", a.AnalyzeCV)
	router.GET("/cv/:id", a.GetCV)
	router.POST("/cv/:id/claim", middleware.RequireUser(), a.ClaimCV)
	router.POST("/cv/:id/customize", a.CustomizeCV)
	router.GET("/cv", middleware.RequireUser(), a.GetUserCVs)

	router.GET("/payments/packages", a.GetPackages)
	router.POST("/payments/checkout", middleware.RequireUser(), a.CreateCheckout)
	router.GET("/payments/transactions", middleware.RequireUser(), a.GetUserTransactions)
	router.POST("/payments/webhook", a.PaymentWebhook)

	router.POST("/auth/sync", a.SyncUser)
	router.GET("/me", middleware.RequireUser(), a.GetMe)

	return a.router
}

func NewAPI(s *supercv.SuperCV) *Api {
	gin.SetMode(gin.ReleaseMode)
	conf, err := config.Fetch()
	if err != nil {
		return nil
	}
	r := gin.Default()
	if conf.Server.Secure {
		r.Use(middleware.SecretKeyAuthMiddleware())
	}
	r.Use(middleware.RateLimitMiddleware(conf))
	r.Use(middleware.IdentityMiddleware())

	r.GET("/", func(c *gin.Context) {
		c.JSON(200, "server running...")
	})

	return &Api{service: s, router: r}
}

// respondError maps service errors to HTTP statuses. Anything that is not a
// typed error surfaces as a 500 without leaking internals.
func respondError(c *gin.Context, err error) {
	status := apierror.MapErrorToHTTPStatus(err)
	if apiErr, ok := err.(apierror.APIError); ok {
		c.JSON(status, gin.H{"error": apiErr.Message})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
}
