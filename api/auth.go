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

	"github.com/supercvhq/supercv/api/middleware"
	model2 "github.com/supercvhq/supercv/api/model"
)

// SyncUser upserts an account from the identity provider after sign-in.
func (a Api) SyncUser(c *gin.Context) {
	var req model2.SyncUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}
	if err := req.ValidateSyncUserRequest(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	usr, err := a.service.SyncUser(c.Request.Context(), req.ToUser())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, usr)
}

// GetMe returns the authenticated user's profile and credit balance.
func (a Api) GetMe(c *gin.Context) {
	usr, err := a.service.GetUser(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, usr)
}
