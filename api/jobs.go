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
	"strconv"

	"github.com/gin-gonic/gin"

	model2 "github.com/paylancer/paylancer/api/model"
	"github.com/paylancer/paylancer/model"
)

func (a Api) CreateJob(c *gin.Context) {
	var req model.CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, a.paylancer.RejectMalformedJob(c.Request.Context(), err))
		return
	}

	job, err := a.paylancer.CreateJob(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, job)
}

func (a Api) ListJobs(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be an integer"})
			return
		}
		limit = n
	}

	jobs, err := a.paylancer.ListJobs(c.Request.Context(), c.Query("status"), limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, jobs)
}

func (a Api) GetJob(c *gin.Context) {
	id, ok := requireParam(c, "id")
	if !ok {
		return
	}

	job, err := a.paylancer.GetJob(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, job)
}

// GetJobStatus looks a job up by paymentId or jobId and returns it with its
// most recent events.
func (a Api) GetJobStatus(c *gin.Context) {
	view, err := a.paylancer.GetJobStatus(c.Request.Context(), c.Query("jobId"), c.Query("paymentId"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

func (a Api) GetJobExecution(c *gin.Context) {
	id, ok := requireParam(c, "id")
	if !ok {
		return
	}

	plan, err := a.paylancer.PrepareExecution(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, plan)
}

func (a Api) TransitionJob(c *gin.Context) {
	id, ok := requireParam(c, "id")
	if !ok {
		return
	}

	var req model2.TransitionJob
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := req.ValidateTransitionJob(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job, err := a.paylancer.TransitionJob(c.Request.Context(), id, req.ToTransitionRequest())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, job)
}
