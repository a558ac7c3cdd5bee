package infra

import "fmt"

const (
	// RedisNamespace Базовый префикс для изоляции данных проекта в Redis
	RedisNamespace = "pdm"
)

// Ключи состояния
const (
	RedisKeyDetectionThreshold = RedisNamespace + ":config:detection_threshold"
	RedisKeyLockThreshold      = RedisNamespace + ":lock:warmup:threshold"
)

// Каналы Pub/Sub (события)
const (
	// RedisChanAlertsPrefix — к префиксу добавляется тип алерта.
	RedisChanAlertsPrefix = RedisNamespace + ":alerts:"
	// RedisChanThreshold — сигналы вида "detection:0.8".
	RedisChanThreshold = RedisNamespace + ":config:threshold-signal"
)

// Субъекты NATS повторяют раскладку MQTT-топиков цеха
const (
	NATSSubjectSensors      = "factory.machines.*.sensors"
	NATSSubjectAlertsPrefix = "factory.alerts."
)

// AlertChannel — канал Redis для алертов заданного типа.
func AlertChannel(alertType string) string {
	return RedisChanAlertsPrefix + alertType
}

// AlertSubject — субъект NATS для алертов заданного типа.
func AlertSubject(alertType string) string {
	return NATSSubjectAlertsPrefix + alertType
}

// GetWarmupLockKey Генератор ключей для блокировок (если нужны динамические)
func GetWarmupLockKey(resource string) string {
	return fmt.Sprintf("%s:lock:warmup:%s", RedisNamespace, resource)
}
