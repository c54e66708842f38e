package helpers

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
)

// IDGenerator generates various types of IDs
type IDGenerator struct {
	rand *rand.Rand
}

// NewIDGenerator creates a new ID generator
func NewIDGenerator() *IDGenerator {
	return &IDGenerator{
		rand: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// GenerateSessionID generates a UUID v4 for a game session
func (g *IDGenerator) GenerateSessionID() string {
	return uuid.New().String()
}

// GenerateTransactionID generates a wallet transaction ID (VARCHAR format)
// Format: TRX-YYYYMMDD-XXXXXX (e.g., TRX-20260831-A1B2C3)
func (g *IDGenerator) GenerateTransactionID() string {
	now := time.Now()
	dateStr := now.Format("20060102")

	suffix := g.randomAlphanumeric(6)

	return fmt.Sprintf("TRX-%s-%s", dateStr, suffix)
}

// GenerateReference generates an opaque reference code
func (g *IDGenerator) GenerateReference(prefix string) string {
	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().Unix(), g.randomAlphanumeric(4))
}

// Shuffle returns a random permutation of [0, n)
func (g *IDGenerator) Shuffle(n int) []int {
	return g.rand.Perm(n)
}

// randomAlphanumeric generates a random alphanumeric string
func (g *IDGenerator) randomAlphanumeric(length int) string {
	const chars = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	result := make([]byte, length)
	for i := range result {
		result[i] = chars[g.rand.Intn(len(chars))]
	}
	return string(result)
}
