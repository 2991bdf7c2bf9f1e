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

package supercv

import (
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/supercvhq/supercv/cache"
	"github.com/supercvhq/supercv/config"
	"github.com/supercvhq/supercv/database"
	"github.com/supercvhq/supercv/internal/aiengine"
	redis_db "github.com/supercvhq/supercv/internal/redis-db"
	"github.com/supercvhq/supercv/internal/storage"
)

// SuperCV represents the main struct for the SuperCV application.
type SuperCV struct {
	queue      *Queue
	datasource database.IDataSource
	storage    *storage.Store
	aiClient   *aiengine.Client
	cache      cache.Cache
	redis      redis.UniversalClient
}

// NewSuperCV initializes a new instance of SuperCV with the provided database
// datasource. It fetches the configuration and wires up the Redis client, file
// store, queue, cache, and AI engine client.
func NewSuperCV(db database.IDataSource) (*SuperCV, error) {
	configuration, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	redisClient, err := redis_db.NewRedisClient(configuration.Redis.Dns)
	if err != nil {
		return nil, err
	}
	fileStore, err := storage.NewStore(configuration.Storage.UploadDir)
	if err != nil {
		return nil, err
	}
	newCache, err := cache.NewCache()
	if err != nil {
		return nil, err
	}
	aiClient := aiengine.NewClient(configuration.AIEngine.Url, time.Duration(configuration.AIEngine.TimeoutSeconds)*time.Second)
	newQueue := NewQueue(configuration)

	newSuperCV := &SuperCV{
		datasource: db,
		queue:      newQueue,
		storage:    fileStore,
		aiClient:   aiClient,
		cache:      newCache,
		redis:      redisClient.Client(),
	}
	return newSuperCV, nil
}
