package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
)

// GenerateConnectionID returns a fresh transport connection id
func GenerateConnectionID() string {
	return uuid.NewString()
}

// GenerateInstanceID identifies this process on the fan-out bus
func GenerateInstanceID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "callhub"
	}
	return fmt.Sprintf("%s-%s", host, uuid.NewString()[:8])
}

// GenerateRequestID generates a unique request ID
func GenerateRequestID() string {
	timestamp := time.Now().UnixNano()
	b := make([]byte, 4)
	rand.Read(b)
	return fmt.Sprintf("req_%d_%s", timestamp, hex.EncodeToString(b))
}

// GenerateGuestName builds a display name for unauthenticated users
func GenerateGuestName() string {
	b := make([]byte, 2)
	rand.Read(b)
	return "Guest " + hex.EncodeToString(b)
}
