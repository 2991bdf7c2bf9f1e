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
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/supercvhq/supercv/api/middleware"
	model2 "github.com/supercvhq/supercv/api/model"
	"github.com/supercvhq/supercv/internal/apierror"
)

const webhookSignatureHeader = "X-Callback-Signature"

func (a Api) GetPackages(c *gin.Context) {
	c.JSON(http.StatusOK, a.service.GetPackages())
}

func (a Api) CreateCheckout(c *gin.Context) {
	var req model2.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}
	if err := req.ValidateCheckoutRequest(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	checkout, err := a.service.CreateCheckout(c.Request.Context(), middleware.UserID(c), req.PackageID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, checkout)
}

func (a Api) GetUserTransactions(c *gin.Context) {
	txns, err := a.service.GetUserTransactions(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, txns)
}

// PaymentWebhook ingests provider notifications. Except for a signature
// failure, every delivery is acknowledged with 200; errors after the
// signature check are ours to resolve, and a non-200 would only make the
// provider hammer us with redeliveries.
func (a Api) PaymentWebhook(c *gin.Context) {
	rawBody, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	credited, err := a.service.HandleWebhook(c.Request.Context(), rawBody, c.GetHeader(webhookSignatureHeader))
	if err != nil {
		if apiErr, ok := err.(apierror.APIError); ok && apiErr.Code == apierror.ErrUnauthorized {
			c.JSON(http.StatusUnauthorized, gin.H{"error": apiErr.Message})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "error acknowledged"})
		return
	}

	if credited {
		c.JSON(http.StatusOK, gin.H{"status": "processed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "already_processed"})
}
