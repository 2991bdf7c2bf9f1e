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

	"github.com/supercvhq/supercv"
	"github.com/supercvhq/supercv/api/middleware"
	model2 "github.com/supercvhq/supercv/api/model"
	"github.com/supercvhq/supercv/internal/fileval"
)

// AnalyzeCV accepts a CV upload and queues it for analysis. The response is
// the PENDING submission: the client polls GET /cv/:id for the result.
func (a Api) AnalyzeCV(c *gin.Context) {
	var req model2.AnalyzeRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}
	if err := req.ValidateAnalyzeRequest(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	if fileHeader.Size > fileval.MaxFileSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file exceeds the 10MB limit"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read uploaded file"})
		return
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(io.LimitReader(file, fileval.MaxFileSize+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read uploaded file"})
		return
	}

	sub, err := a.service.Submit(c.Request.Context(), &supercv.SubmitParams{
		FileData:     data,
		FileSize:     fileHeader.Size,
		MimeType:     fileHeader.Header.Get("Content-Type"),
		OriginalName: fileHeader.Filename,
		UserID:       middleware.UserID(c),
		JobContext:   req.ToJobContext(),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, sub)
}

// GetCV returns a submission's status and results. The submission id is the
// capability: no further authentication is required to read it.
func (a Api) GetCV(c *gin.Context) {
	id, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /:id"})
		return
	}

	sub, err := a.service.GetSubmission(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, sub)
}

// ClaimCV attaches an anonymous submission to the authenticated user and
// charges one credit.
func (a Api) ClaimCV(c *gin.Context) {
	id, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /:id"})
		return
	}

	sub, err := a.service.ClaimSubmission(c.Request.Context(), id, middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, sub)
}

// CustomizeCV queues a tailored rewrite of an analyzed CV.
func (a Api) CustomizeCV(c *gin.Context) {
	id, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /:id"})
		return
	}

	var req model2.CustomizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}
	if err := req.ValidateCustomizeRequest(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	sub, err := a.service.RequestCustomization(c.Request.Context(), id, middleware.UserID(c), req.Mode, req.JobDescription)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, sub)
}

// GetUserCVs lists the authenticated user's submissions.
func (a Api) GetUserCVs(c *gin.Context) {
	subs, err := a.service.GetUserSubmissions(c.Request.Context(), middleware.UserID(c), 20)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, subs)
}
