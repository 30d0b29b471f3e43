// Package slip renders a ticket as a QR code that staff can scan back.
package slip

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"ms-clinic-queue/internal/models"

	"github.com/skip2/go-qrcode"
)

var ErrInvalidSlip = errors.New("invalid ticket slip")

// Payload is the sealed content of a slip.
type Payload struct {
	TicketID     string             `json:"id"`
	TicketNumber int                `json:"n"`
	BusinessDay  models.BusinessDay `json:"d"`
}

type Generator struct {
	aead cipher.AEAD
	size int
}

func NewGenerator(secret string, size int) (*Generator, error) {
	if size <= 0 {
		size = 256
	}
	key := sha256.Sum256([]byte(secret)) // normalize to 32 bytes
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Generator{aead: aead, size: size}, nil
}

// Seal encrypts the ticket reference into a URL-safe token.
func (g *Generator) Seal(ticket models.Ticket) (string, error) {
	data, err := json.Marshal(Payload{TicketID: ticket.ID, TicketNumber: ticket.TicketNumber, BusinessDay: ticket.BusinessDay})
	if err != nil {
		return "", err
	}

	nonce := make([]byte, g.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := g.aead.Seal(nonce, nonce, data, nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal. Tampered or foreign tokens return ErrInvalidSlip.
func (g *Generator) Open(token string) (*Payload, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSlip, err)
	}
	ns := g.aead.NonceSize()
	if len(raw) < ns {
		return nil, ErrInvalidSlip
	}
	data, err := g.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return nil, ErrInvalidSlip
	}
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSlip, err)
	}
	return &p, nil
}

// PNG renders the sealed ticket as a QR code image.
func (g *Generator) PNG(ticket models.Ticket) ([]byte, error) {
	token, err := g.Seal(ticket)
	if err != nil {
		return nil, err
	}
	return qrcode.Encode(token, qrcode.Medium, g.size)
}
