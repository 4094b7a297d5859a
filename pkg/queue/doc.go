// Package queue publishes job messages to durable queues.
//
// KafkaPublisher delivers synchronously through confluent-kafka-go and
// MemoryPublisher keeps messages in memory for dry runs and tests. Both
// implement QueuePublisher and require Close to release resources.
package queue
