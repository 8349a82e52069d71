package idempotency

import "time"

// guardRecord is the item shape in the DynamoDB guard table.
type guardRecord struct {
	IdempotencyKey string    `dynamodbav:"idempotency_key"` // PK
	CreatedAt      time.Time `dynamodbav:"created_at"`
	ExpiresAt      int64     `dynamodbav:"expires_at"` // TTL epoch seconds
}
