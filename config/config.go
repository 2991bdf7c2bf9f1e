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

package config

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"strings"
	"sync/atomic"

	"github.com/kelseyhightower/envconfig"

	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_PORT = "5002"
)

var ConfigStore atomic.Value

type ServerConfig struct {
	Secure    bool   `json:"secure" envconfig:"SUPERCV_SERVER_SECURE"`
	SecretKey string `json:"secret_key" envconfig:"SUPERCV_SERVER_SECRET_KEY"`
	Port      string `json:"port" envconfig:"SUPERCV_SERVER_PORT"`
}

type DataSourceConfig struct {
	Dns string `json:"dns" envconfig:"SUPERCV_DATA_SOURCE_DNS"`
}

type RedisConfig struct {
	Dns string `json:"dns" envconfig:"SUPERCV_REDIS_DNS"`
}

// AIEngineConfig points at the external inference service. The timeout is
// deliberately generous; retries belong to the queue, not the client.
type AIEngineConfig struct {
	Url            string `json:"url" envconfig:"SUPERCV_AI_ENGINE_URL"`
	TimeoutSeconds int    `json:"timeout_seconds" envconfig:"SUPERCV_AI_ENGINE_TIMEOUT_SECONDS"`
}

type PaymentConfig struct {
	ApiUrl       string `json:"api_url" envconfig:"SUPERCV_PAYMENT_API_URL"`
	ApiKey       string `json:"api_key" envconfig:"SUPERCV_PAYMENT_API_KEY"`
	WebhookToken string `json:"webhook_token" envconfig:"SUPERCV_PAYMENT_WEBHOOK_TOKEN"`
	FrontendUrl  string `json:"frontend_url" envconfig:"SUPERCV_PAYMENT_FRONTEND_URL"`
}

type StorageConfig struct {
	UploadDir string `json:"upload_dir" envconfig:"SUPERCV_STORAGE_UPLOAD_DIR"`
}

type QueueConfig struct {
	AnalyzeQueue   string `json:"analyze_queue" envconfig:"SUPERCV_QUEUE_ANALYZE"`
	CustomizeQueue string `json:"customize_queue" envconfig:"SUPERCV_QUEUE_CUSTOMIZE"`
	MaxRetries     int    `json:"max_retries" envconfig:"SUPERCV_QUEUE_MAX_RETRIES"`
	Concurrency    int    `json:"concurrency" envconfig:"SUPERCV_QUEUE_CONCURRENCY"`
	MonitoringPort string `json:"monitoring_port" envconfig:"SUPERCV_QUEUE_MONITORING_PORT"`
}

type RateLimitConfig struct {
	RequestsPerSecond  *float64 `json:"requests_per_second" envconfig:"SUPERCV_RATE_LIMIT_RPS"`
	Burst              *int     `json:"burst" envconfig:"SUPERCV_RATE_LIMIT_BURST"`
	CleanupIntervalSec *int     `json:"cleanup_interval_sec" envconfig:"SUPERCV_RATE_LIMIT_CLEANUP_INTERVAL_SEC"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url"`
}

type Notification struct {
	Slack SlackWebhook `json:"slack"`
}

type Configuration struct {
	ProjectName  string           `json:"project_name" envconfig:"SUPERCV_PROJECT_NAME"`
	Server       ServerConfig     `json:"server"`
	DataSource   DataSourceConfig `json:"data_source"`
	Redis        RedisConfig      `json:"redis"`
	AIEngine     AIEngineConfig   `json:"ai_engine"`
	Payment      PaymentConfig    `json:"payment"`
	Storage      StorageConfig    `json:"storage"`
	Queue        QueueConfig      `json:"queue"`
	Notification Notification     `json:"notification"`
	RateLimit    RateLimitConfig  `json:"rate_limit"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}

	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("supercv", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return err
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called supercv.json with your config ❌")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		log.Println("Warning: Project name is empty. Setting a default name.")
		cnf.ProjectName = "SuperCV Server"
	}

	if cnf.DataSource.Dns == "" {
		log.Println("Error: Data source DNS is empty. It's a required field.")
		return errors.New("data source DNS is required")
	}

	if cnf.Redis.Dns == "" {
		log.Println("Error: Redis DNS is empty. It's a required field.")
		return errors.New("redis DNS is required")
	}

	// Trim white spaces from fields
	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)
	cnf.AIEngine.Url = strings.TrimSpace(cnf.AIEngine.Url)

	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
		log.Printf("Warning: Port not specified in config. Setting default port: %s", DEFAULT_PORT)
	}

	if cnf.AIEngine.Url == "" {
		cnf.AIEngine.Url = "http://localhost:8000"
		log.Printf("Warning: AI engine URL not specified. Setting default: %s", cnf.AIEngine.Url)
	}
	if cnf.AIEngine.TimeoutSeconds <= 0 {
		cnf.AIEngine.TimeoutSeconds = 90
	}

	if cnf.Payment.ApiUrl == "" {
		cnf.Payment.ApiUrl = "https://api.mayar.id/hl/v1"
	}
	if cnf.Payment.FrontendUrl == "" {
		cnf.Payment.FrontendUrl = "http://localhost:3000"
	}

	if cnf.Storage.UploadDir == "" {
		cnf.Storage.UploadDir = "./uploads"
	}

	if cnf.Queue.AnalyzeQueue == "" {
		cnf.Queue.AnalyzeQueue = "cv_analyze_queue"
	}
	if cnf.Queue.CustomizeQueue == "" {
		cnf.Queue.CustomizeQueue = "cv_customize_queue"
	}
	if cnf.Queue.MaxRetries <= 0 {
		cnf.Queue.MaxRetries = 3
	}
	if cnf.Queue.Concurrency <= 0 {
		cnf.Queue.Concurrency = 4
	}
	if cnf.Queue.MonitoringPort == "" {
		cnf.Queue.MonitoringPort = "5003"
	}

	// Rate limiting is disabled by default (when both RPS and Burst are nil)
	if cnf.RateLimit.RequestsPerSecond != nil && cnf.RateLimit.Burst == nil {
		defaultBurst := 2 * int(*cnf.RateLimit.RequestsPerSecond)
		cnf.RateLimit.Burst = &defaultBurst
		log.Printf("Warning: Rate limit burst not specified. Setting default value: %d", defaultBurst)
	}
	if cnf.RateLimit.RequestsPerSecond == nil && cnf.RateLimit.Burst != nil {
		defaultRPS := float64(*cnf.RateLimit.Burst) / 2
		cnf.RateLimit.RequestsPerSecond = &defaultRPS
		log.Printf("Warning: Rate limit RPS not specified. Setting default value: %.2f", defaultRPS)
	}
	if cnf.RateLimit.CleanupIntervalSec == nil {
		defaultCleanup := 10800 // 3 hours in seconds
		cnf.RateLimit.CleanupIntervalSec = &defaultCleanup
	}

	return nil
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
