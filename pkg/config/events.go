package config

import "time"

// EventsConfig controls KYC status event delivery.
type EventsConfig struct {
	// Kafka is disabled when KafkaBrokers is empty.
	KafkaBrokers string
	KafkaTopic   string

	WebhookTimeout     time.Duration
	WebhookMaxAttempts int
	WebhookRetryDelay  time.Duration
	WebhookConcurrency int
}

func loadEventsConfig() EventsConfig {
	return EventsConfig{
		KafkaBrokers:       getEnv("KAFKA_BROKERS", ""),
		KafkaTopic:         getEnv("KAFKA_TOPIC", "kyc-status"),
		WebhookTimeout:     getDurationEnv("WEBHOOK_TIMEOUT", 10*time.Second),
		WebhookMaxAttempts: getIntEnv("WEBHOOK_MAX_ATTEMPTS", 3),
		WebhookRetryDelay:  getDurationEnv("WEBHOOK_RETRY_DELAY", 500*time.Millisecond),
		WebhookConcurrency: getIntEnv("WEBHOOK_CONCURRENCY", 8),
	}
}

func (e EventsConfig) KafkaEnabled() bool {
	return e.KafkaBrokers != ""
}
