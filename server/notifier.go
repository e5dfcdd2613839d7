// Copyright 2025 The Go Taskwire Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"bytes"
	"context"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-json-experiment/json"
	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jwt"

	"github.com/go-taskwire/taskwire"
)

// digestClaim is the JWT claim binding a notification token to the exact
// request body it authenticates.
const digestClaim = "request_body_sha256"

// notificationTokenHeader echoes the receiver-chosen opaque token back on
// each delivery.
const notificationTokenHeader = "X-Taskwire-Notification-Token"

// Notifier delivers task update events to push notification endpoints.
// Each delivery is authenticated with a short-lived RS256 JWT whose claims
// bind the issue time and a digest of the request body.
type Notifier struct {
	httpClient *http.Client
	signingKey jwk.Key
	issuer     string
}

// NewNotifier creates a Notifier signing with the given RSA private key.
func NewNotifier(privateKey *rsa.PrivateKey, issuer string) (*Notifier, error) {
	if privateKey == nil {
		return nil, errors.New("signing key is required")
	}

	key, err := jwk.Import(privateKey)
	if err != nil {
		return nil, fmt.Errorf("import signing key: %w", err)
	}

	return &Notifier{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		signingKey: key,
		issuer:     issuer,
	}, nil
}

// WithHTTPClient overrides the HTTP client used for deliveries.
func (n *Notifier) WithHTTPClient(client *http.Client) *Notifier {
	n.httpClient = client
	return n
}

// Notify POSTs the event to the configured notification URL.
func (n *Notifier) Notify(ctx context.Context, config taskwire.PushNotificationConfig, event taskwire.Event) error {
	if config.URL == "" {
		return errors.New("notification url is empty")
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	signed, err := n.signToken(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, config.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+signed)
	if config.Token != "" {
		req.Header.Set(notificationTokenHeader, config.Token)
	}

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("deliver notification: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("notification endpoint returned http %d", resp.StatusCode)
	}
	return nil
}

func (n *Notifier) signToken(body []byte) (string, error) {
	digest := sha256.Sum256(body)

	token, err := jwt.NewBuilder().
		Issuer(n.issuer).
		IssuedAt(time.Now()).
		Expiration(time.Now().Add(5*time.Minute)).
		Claim(digestClaim, hex.EncodeToString(digest[:])).
		Build()
	if err != nil {
		return "", fmt.Errorf("build notification token: %w", err)
	}

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.RS256(), n.signingKey))
	if err != nil {
		return "", fmt.Errorf("sign notification token: %w", err)
	}
	return string(signed), nil
}

// VerifyPushNotification validates a received notification: the bearer
// token must verify against publicKey, be unexpired, and its digest claim
// must match the request body.
func VerifyPushNotification(tokenString string, body []byte, publicKey *rsa.PublicKey) error {
	if publicKey == nil {
		return errors.New("verification key is required")
	}

	key, err := jwk.Import(publicKey)
	if err != nil {
		return fmt.Errorf("import verification key: %w", err)
	}

	token, err := jwt.Parse([]byte(tokenString), jwt.WithKey(jwa.RS256(), key), jwt.WithValidate(true))
	if err != nil {
		return fmt.Errorf("parse notification token: %w", err)
	}

	var claimed string
	if err := token.Get(digestClaim, &claimed); err != nil {
		return fmt.Errorf("notification token missing digest claim: %w", err)
	}

	digest := sha256.Sum256(body)
	if claimed != hex.EncodeToString(digest[:]) {
		return errors.New("notification body digest mismatch")
	}
	return nil
}
