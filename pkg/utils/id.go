package utils

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

var objectIDCounter uint32

// GenerateID generates a 12-byte ObjectID-like string (24 hex characters).
// History messages use it so that ids sort by creation second.
func GenerateID() string {
	var b [12]byte
	binary.BigEndian.PutUint32(b[0:4], uint32(time.Now().Unix()))
	_, _ = rand.Read(b[4:9])
	c := atomic.AddUint32(&objectIDCounter, 1) % 0xFFFFFF
	b[9] = byte(c >> 16)
	b[10] = byte(c >> 8)
	b[11] = byte(c)
	return hex.EncodeToString(b[:])
}

// NewConnectionID returns a random identifier for a transport connection.
func NewConnectionID() string {
	return uuid.NewString()
}
