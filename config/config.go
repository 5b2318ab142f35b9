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

package config

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/kelseyhightower/envconfig"

	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_PORT            = "5001"
	DEFAULT_MONITORING_PORT = "5004"
	DEFAULT_PROJECT_NAME    = "Paylancer"
)

var ConfigStore atomic.Value

type ServerConfig struct {
	SSL       bool   `json:"ssl" envconfig:"PAYLANCER_SERVER_SSL"`
	Secure    bool   `json:"secure" envconfig:"PAYLANCER_SERVER_SECURE"`
	SecretKey string `json:"secret_key" envconfig:"PAYLANCER_SERVER_SECRET_KEY"`
	AdminKey  string `json:"admin_key" envconfig:"PAYLANCER_SERVER_ADMIN_KEY"`
	Domain    string `json:"domain" envconfig:"PAYLANCER_SERVER_SSL_DOMAIN"`
	Email     string `json:"ssl_email" envconfig:"PAYLANCER_SERVER_SSL_EMAIL"`
	Port      string `json:"port" envconfig:"PAYLANCER_SERVER_PORT"`
}

type DataSourceConfig struct {
	Dns string `json:"dns" envconfig:"PAYLANCER_DATA_SOURCE_DNS"`
}

type RedisConfig struct {
	Dns           string `json:"dns" envconfig:"PAYLANCER_REDIS_DNS"`
	SkipTLSVerify bool   `json:"skip_tls_verify" envconfig:"PAYLANCER_REDIS_SKIP_TLS_VERIFY"`
}

// ExecutorConfig points at the on-chain ERC3009Executor that settles bundles.
type ExecutorConfig struct {
	ContractAddress string `json:"contract_address" envconfig:"PAYLANCER_EXECUTOR_CONTRACT_ADDRESS"`
}

type JobsConfig struct {
	ReservationRetentionSeconds int `json:"reservation_retention_seconds" envconfig:"PAYLANCER_JOBS_RESERVATION_RETENTION_SECONDS"`
	CleanupIntervalSeconds      int `json:"cleanup_interval_seconds" envconfig:"PAYLANCER_JOBS_CLEANUP_INTERVAL_SECONDS"`
	StatusEventsLimit           int `json:"status_events_limit" envconfig:"PAYLANCER_JOBS_STATUS_EVENTS_LIMIT"`
	DefaultListLimit            int `json:"default_list_limit" envconfig:"PAYLANCER_JOBS_DEFAULT_LIST_LIMIT"`
	MaxListLimit                int `json:"max_list_limit" envconfig:"PAYLANCER_JOBS_MAX_LIST_LIMIT"`
	SignatureMaxAgeSeconds      int `json:"signature_max_age_seconds" envconfig:"PAYLANCER_JOBS_SIGNATURE_MAX_AGE_SECONDS"`
}

type QueueConfig struct {
	WebhookQueue       string `json:"webhook_queue" envconfig:"PAYLANCER_QUEUE_WEBHOOK_QUEUE"`
	CleanupQueue       string `json:"cleanup_queue" envconfig:"PAYLANCER_QUEUE_CLEANUP_QUEUE"`
	WebhookConcurrency int    `json:"webhook_concurrency" envconfig:"PAYLANCER_QUEUE_WEBHOOK_CONCURRENCY"`
	MaxRetryAttempts   int    `json:"max_retry_attempts" envconfig:"PAYLANCER_QUEUE_MAX_RETRY_ATTEMPTS"`
	MonitoringPort     string `json:"monitoring_port" envconfig:"PAYLANCER_QUEUE_MONITORING_PORT"`
}

type RateLimitConfig struct {
	RequestsPerSecond  *float64 `json:"requests_per_second" envconfig:"PAYLANCER_RATE_LIMIT_RPS"`
	Burst              *int     `json:"burst" envconfig:"PAYLANCER_RATE_LIMIT_BURST"`
	CleanupIntervalSec *int     `json:"cleanup_interval_sec" envconfig:"PAYLANCER_RATE_LIMIT_CLEANUP_INTERVAL_SEC"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url" envconfig:"PAYLANCER_SLACK_WEBHOOK_URL"`
}

type Notification struct {
	Slack   SlackWebhook `json:"slack"`
	Webhook struct {
		Url     string            `json:"url" envconfig:"PAYLANCER_WEBHOOK_URL"`
		Headers map[string]string `json:"headers"`
	} `json:"webhook"`
}

type OtelConfig struct {
	ExporterOtlpProtocol string `json:"exporter_otlp_protocol" envconfig:"PAYLANCER_OTEL_EXPORTER_OTLP_PROTOCOL"`
	ExporterOtlpEndpoint string `json:"exporter_otlp_endpoint" envconfig:"PAYLANCER_OTEL_EXPORTER_OTLP_ENDPOINT"`
	ExporterOtlpHeaders  string `json:"exporter_otlp_headers" envconfig:"PAYLANCER_OTEL_EXPORTER_OTLP_HEADERS"`
}

type Configuration struct {
	ProjectName     string           `json:"project_name" envconfig:"PAYLANCER_PROJECT_NAME"`
	Server          ServerConfig     `json:"server"`
	DataSource      DataSourceConfig `json:"data_source"`
	Redis           RedisConfig      `json:"redis"`
	Executor        ExecutorConfig   `json:"executor"`
	Jobs            JobsConfig       `json:"jobs"`
	Queue           QueueConfig      `json:"queue"`
	Notification    Notification     `json:"notification"`
	RateLimit       RateLimitConfig  `json:"rate_limit"`
	EnableTelemetry bool             `json:"enable_telemetry" envconfig:"PAYLANCER_ENABLE_TELEMETRY"`
	Otel            OtelConfig       `json:"otel"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		defer f.Close()
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}
	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// environment variables win over the file
	err = envconfig.Process("paylancer", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return nil
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called paylancer.json with your config ❌")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)
	cnf.Executor.ContractAddress = strings.TrimSpace(cnf.Executor.ContractAddress)

	if cnf.ProjectName == "" {
		log.Println("Warning: Project name is empty. Setting a default name.")
		cnf.ProjectName = DEFAULT_PROJECT_NAME
	}

	if cnf.DataSource.Dns == "" {
		log.Println("Error: Data source DNS is empty. It's a required field.")
		return errors.New("data source DNS is required")
	}

	if cnf.Redis.Dns == "" {
		log.Println("Error: Redis DNS is empty. It's a required field.")
		return errors.New("redis DNS is required")
	}

	if !common.IsHexAddress(cnf.Executor.ContractAddress) {
		log.Println("Error: Executor contract address is missing or malformed.")
		return errors.New("executor contract address must be a valid address")
	}

	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
		log.Printf("Warning: Port not specified in config. Setting default port: %s", DEFAULT_PORT)
	}

	cnf.Jobs.applyDefaults()
	cnf.Queue.applyDefaults()

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
		defaultCleanup := 10800
		cnf.RateLimit.CleanupIntervalSec = &defaultCleanup
	}

	return nil
}

func (j *JobsConfig) applyDefaults() {
	if j.ReservationRetentionSeconds <= 0 {
		j.ReservationRetentionSeconds = 24 * 60 * 60
	}
	if j.CleanupIntervalSeconds <= 0 {
		j.CleanupIntervalSeconds = 5 * 60
	}
	if j.StatusEventsLimit <= 0 {
		j.StatusEventsLimit = 3
	}
	if j.MaxListLimit <= 0 {
		j.MaxListLimit = 200
	}
	if j.DefaultListLimit <= 0 || j.DefaultListLimit > j.MaxListLimit {
		j.DefaultListLimit = 50
	}
	if j.SignatureMaxAgeSeconds <= 0 {
		j.SignatureMaxAgeSeconds = 5 * 60
	}
}

func (q *QueueConfig) applyDefaults() {
	if q.WebhookQueue == "" {
		q.WebhookQueue = "paylancer_webhooks"
	}
	if q.CleanupQueue == "" {
		q.CleanupQueue = "paylancer_cleanup"
	}
	if q.WebhookConcurrency <= 0 {
		q.WebhookConcurrency = 10
	}
	if q.MaxRetryAttempts <= 0 {
		q.MaxRetryAttempts = 5
	}
	if q.MonitoringPort == "" {
		q.MonitoringPort = DEFAULT_MONITORING_PORT
	}
}

// ReservationRetention is how long terminal reservations are kept after they expire.
func (j JobsConfig) ReservationRetention() time.Duration {
	return time.Duration(j.ReservationRetentionSeconds) * time.Second
}

func (j JobsConfig) CleanupInterval() time.Duration {
	return time.Duration(j.CleanupIntervalSeconds) * time.Second
}

func (j JobsConfig) SignatureMaxAge() time.Duration {
	return time.Duration(j.SignatureMaxAgeSeconds) * time.Second
}

// ClampListLimit bounds a caller supplied page size to the configured window.
func (j JobsConfig) ClampListLimit(limit int) int {
	if limit <= 0 {
		return j.DefaultListLimit
	}
	if limit > j.MaxListLimit {
		return j.MaxListLimit
	}
	return limit
}

// SetOtelExporterEnvs exports the otel section so the OTLP exporter picks it up.
func SetOtelExporterEnvs() error {
	cnf, err := Fetch()
	if err != nil {
		return err
	}
	envs := map[string]string{
		"OTEL_EXPORTER_OTLP_PROTOCOL": cnf.Otel.ExporterOtlpProtocol,
		"OTEL_EXPORTER_OTLP_ENDPOINT": cnf.Otel.ExporterOtlpEndpoint,
		"OTEL_EXPORTER_OTLP_HEADERS":  cnf.Otel.ExporterOtlpHeaders,
	}
	for key, value := range envs {
		if value == "" {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			return err
		}
	}
	return nil
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	mockConfig.Jobs.applyDefaults()
	mockConfig.Queue.applyDefaults()
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
