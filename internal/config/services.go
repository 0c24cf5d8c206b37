// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"path/filepath"
	"time"
)

// Tarpit is the configuration for the Tarpit Engine.
type Tarpit struct {
	Dirs Dirs

	EscalationEndpoint string
	SystemSeed         string

	MinDelay time.Duration
	MaxDelay time.Duration

	MaxHops      int
	HopWindow    time.Duration
	BlocklistTTL time.Duration
	FlagTTL      time.Duration

	RedisHops      Redis
	RedisBlocklist Redis
	RedisFlags     Redis

	PG    Postgres
	PGErr error // non-nil when the password secret could not be loaded
}

// HopLimitEnabled reports whether the self-block hop limit is active.
func (t Tarpit) HopLimitEnabled() bool { return t.MaxHops > 0 }

// LoadTarpit assembles the Tarpit Engine configuration from the environment.
func LoadTarpit() Tarpit {
	d := LoadDirs()
	t := Tarpit{
		Dirs:               d,
		EscalationEndpoint: Str("ESCALATION_ENDPOINT", "http://localhost:8003/escalate"),
		SystemSeed:         Str("SYSTEM_SEED", "default_seed_value_change_me"),
		MinDelay:           time.Duration(Float("TAR_PIT_MIN_DELAY_SEC", 0.6) * float64(time.Second)),
		MaxDelay:           time.Duration(Float("TAR_PIT_MAX_DELAY_SEC", 1.2) * float64(time.Second)),
		MaxHops:            Int("TAR_PIT_MAX_HOPS", 250),
		HopWindow:          Seconds("TAR_PIT_HOP_WINDOW_SECONDS", 24*time.Hour),
		BlocklistTTL:       Seconds("BLOCKLIST_TTL_SECONDS", 24*time.Hour),
		FlagTTL:            Seconds("TAR_PIT_FLAG_TTL", 5*time.Minute),
		RedisHops:          LoadRedis(d, "REDIS_DB_TAR_PIT_HOPS", 4),
		RedisBlocklist:     LoadRedis(d, "REDIS_DB_BLOCKLIST", 2),
		RedisFlags:         LoadRedis(d, "REDIS_DB_TAR_PIT", 1),
	}
	if t.MaxDelay < t.MinDelay {
		t.MaxDelay = t.MinDelay
	}
	t.PG, t.PGErr = LoadPostgres(d)
	return t
}

// Escalation is the configuration for the Escalation Engine.
type Escalation struct {
	Dirs Dirs

	WebhookURL string

	LocalLLMURL     string
	LocalLLMModel   string
	LocalLLMTimeout time.Duration

	ExternalAPIURL     string
	ExternalAPIKey     string
	ExternalAPITimeout time.Duration

	EnableIPReputation       bool
	IPReputationURL          string
	IPReputationKey          string
	IPReputationTimeout      time.Duration
	IPReputationBonus        float64
	IPReputationMinMalicious float64

	EnableCaptcha    bool
	ThresholdHigh    float64
	CaptchaLow       float64
	CaptchaHigh      float64
	FrequencyWindow  time.Duration
	KnownBadUAs      []string
	KnownBenignUAs   []string
	RobotsPath       string
	ModelPath        string
	RedisFrequency   Redis
}

// LoadEscalation assembles the Escalation Engine configuration from the
// environment, loading the optional API-key secrets.
func LoadEscalation() Escalation {
	d := LoadDirs()
	e := Escalation{
		Dirs:       d,
		WebhookURL: Str("ESCALATION_WEBHOOK_URL", "http://localhost:8000/analyze"),

		LocalLLMURL:     Str("LOCAL_LLM_API_URL", ""),
		LocalLLMModel:   Str("LOCAL_LLM_MODEL", ""),
		LocalLLMTimeout: time.Duration(Float("LOCAL_LLM_TIMEOUT", 45) * float64(time.Second)),

		ExternalAPIURL:     Str("EXTERNAL_CLASSIFICATION_API_URL", ""),
		ExternalAPITimeout: time.Duration(Float("EXTERNAL_API_TIMEOUT", 15) * float64(time.Second)),

		EnableIPReputation:       Bool("ENABLE_IP_REPUTATION", false),
		IPReputationURL:          Str("IP_REPUTATION_API_URL", ""),
		IPReputationTimeout:      time.Duration(Float("IP_REPUTATION_TIMEOUT", 10) * float64(time.Second)),
		IPReputationBonus:        Float("IP_REPUTATION_MALICIOUS_SCORE_BONUS", 0.3),
		IPReputationMinMalicious: Float("IP_REPUTATION_MIN_MALICIOUS_THRESHOLD", 50),

		EnableCaptcha:   Bool("ENABLE_CAPTCHA_TRIGGER", false),
		ThresholdHigh:   Float("HEURISTIC_THRESHOLD_HIGH", 0.8),
		CaptchaLow:      Float("CAPTCHA_SCORE_THRESHOLD_LOW", 0.2),
		CaptchaHigh:     Float("CAPTCHA_SCORE_THRESHOLD_HIGH", 0.5),
		FrequencyWindow: Seconds("FREQUENCY_WINDOW_SECONDS", 5*time.Minute),

		KnownBadUAs: List("KNOWN_BAD_UAS",
			"python-requests,curl,wget,scrapy,java/,ahrefsbot,semrushbot,mj12bot,dotbot,petalbot,"+
				"bytespider,gptbot,ccbot,claude-web,google-extended,dataprovider,purebot,scan,masscan,zgrab,nmap"),
		KnownBenignUAs: List("KNOWN_BENIGN_CRAWLERS_UAS",
			"googlebot,bingbot,slurp,duckduckbot,baiduspider,yandexbot,googlebot-image"),

		RobotsPath:     filepath.Join(d.Base, "config", Str("ROBOTS_TXT_FILENAME", "robots.txt")),
		ModelPath:      filepath.Join(d.Base, "models", Str("RF_MODEL_FILENAME", "bot_detection_model.json")),
		RedisFrequency: LoadRedis(d, "REDIS_DB_FREQUENCY", 3),
	}
	if secret, err := LoadSecret(d.SecretPath("EXTERNAL_API_KEY_FILENAME", "external_api_key.txt")); err == nil {
		e.ExternalAPIKey = secret
	}
	if secret, err := LoadSecret(d.SecretPath("IP_REPUTATION_API_KEY_FILENAME", "ip_reputation_api_key.txt")); err == nil {
		e.IPReputationKey = secret
	}
	return e
}

// Webhook is the configuration for the Webhook Sink.
type Webhook struct {
	Dirs Dirs

	RedisBlocklist Redis
	BlocklistTTL   time.Duration

	AlertMethod      string // webhook, slack, smtp, none
	AlertWebhookURL  string
	AlertSlackURL    string
	AlertMinSeverity string // reason prefix resolved through the severity map

	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SMTPUseTLS   bool
	EmailFrom    string
	EmailTo      string

	EnableCommunityReport  bool
	CommunityReportURL     string
	CommunityReportKey     string
	CommunityReportTimeout time.Duration
}

// LoadWebhook assembles the Webhook Sink configuration from the environment.
// An SMTP method missing its required fields degrades to "none" rather than
// failing startup.
func LoadWebhook() Webhook {
	d := LoadDirs()
	w := Webhook{
		Dirs:           d,
		RedisBlocklist: LoadRedis(d, "REDIS_DB_BLOCKLIST", 2),
		BlocklistTTL:   Seconds("BLOCKLIST_TTL_SECONDS", 24*time.Hour),

		AlertMethod:      Str("ALERT_METHOD", "none"),
		AlertWebhookURL:  Str("ALERT_GENERIC_WEBHOOK_URL", ""),
		AlertSlackURL:    Str("ALERT_SLACK_WEBHOOK_URL", ""),
		AlertMinSeverity: Str("ALERT_MIN_REASON_SEVERITY", "Local LLM"),

		SMTPHost:   Str("ALERT_SMTP_HOST", ""),
		SMTPPort:   Int("ALERT_SMTP_PORT", 587),
		SMTPUser:   Str("ALERT_SMTP_USER", ""),
		SMTPUseTLS: Bool("ALERT_SMTP_USE_TLS", true),
		EmailTo:    Str("ALERT_EMAIL_TO", ""),

		EnableCommunityReport:  Bool("ENABLE_COMMUNITY_REPORTING", false),
		CommunityReportURL:     Str("COMMUNITY_BLOCKLIST_REPORT_URL", ""),
		CommunityReportTimeout: time.Duration(Float("COMMUNITY_BLOCKLIST_REPORT_TIMEOUT", 10) * float64(time.Second)),
	}
	w.EmailFrom = Str("ALERT_EMAIL_FROM", w.SMTPUser)
	if secret, err := LoadSecret(d.SecretPath("ALERT_SMTP_PASSWORD_FILENAME", "smtp_password.txt")); err == nil {
		w.SMTPPassword = secret
	}
	if secret, err := LoadSecret(d.SecretPath("COMMUNITY_BLOCKLIST_API_KEY_FILENAME", "community_blocklist_api_key.txt")); err == nil {
		w.CommunityReportKey = secret
	}
	if w.AlertMethod == "smtp" && (w.SMTPHost == "" || w.EmailTo == "" || w.EmailFrom == "") {
		w.AlertMethod = "none"
	}
	return w
}
