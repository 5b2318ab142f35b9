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

	model2 "github.com/paylancer/paylancer/api/model"
	"github.com/paylancer/paylancer/model"
)

// createdKeyResponse is the only place a plaintext key is ever returned.
type createdKeyResponse struct {
	*model.APIKey
	Key string `json:"key"`
}

func (a Api) ListAPIKeys(c *gin.Context) {
	keys, err := a.paylancer.ListAPIKeys(c.Request.Context(), c.Query("createdBy"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, keys)
}

func (a Api) CreateAPIKey(c *gin.Context) {
	var req model2.CreateAPIKey
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := req.ValidateCreateAPIKey(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	key, secret, err := a.paylancer.CreateAPIKey(c.Request.Context(), req.Name, req.CreatedBy)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, createdKeyResponse{APIKey: key, Key: secret})
}

func (a Api) UpdateAPIKey(c *gin.Context) {
	id, ok := requireParam(c, "id")
	if !ok {
		return
	}

	var req model2.UpdateAPIKey
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := req.ValidateUpdateAPIKey(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	key, err := a.paylancer.SetAPIKeyStatus(c.Request.Context(), id, req.Action)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, key)
}

func (a Api) DeleteAPIKey(c *gin.Context) {
	id, ok := requireParam(c, "id")
	if !ok {
		return
	}

	if err := a.paylancer.DeleteAPIKey(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (a Api) ListDeveloperAPIKeys(c *gin.Context) {
	keys, err := a.paylancer.ListDeveloperAPIKeys(c.Request.Context(), c.Query("address"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, keys)
}

func (a Api) CreateDeveloperAPIKey(c *gin.Context) {
	var req model2.CreateDeveloperAPIKey
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := req.ValidateCreateDeveloperAPIKey(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	key, secret, err := a.paylancer.CreateDeveloperAPIKey(c.Request.Context(), req.Name, req.ToDeveloperAuth())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, createdKeyResponse{APIKey: key, Key: secret})
}

func (a Api) UpdateDeveloperAPIKey(c *gin.Context) {
	id, ok := requireParam(c, "id")
	if !ok {
		return
	}

	var req model2.UpdateDeveloperAPIKey
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := req.ValidateUpdateDeveloperAPIKey(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	key, err := a.paylancer.UpdateDeveloperAPIKey(c.Request.Context(), id, req.Action, req.ToDeveloperAuth())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, key)
}
