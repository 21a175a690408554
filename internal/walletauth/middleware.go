// Package walletauth authenticates API requests by a wallet signature over
// the request timestamp, route and body.
package walletauth

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
)

const (
	HeaderAddress   = "X-Wallet-Address"
	HeaderSignature = "X-Wallet-Signature"
	HeaderTimestamp = "X-Request-Timestamp"
)

var (
	ErrMissingAddress   = errors.New("missing wallet address")
	ErrInvalidAddress   = errors.New("invalid wallet address")
	ErrMissingSignature = errors.New("missing request signature")
	ErrMissingTimestamp = errors.New("missing request timestamp")
	ErrStaleTimestamp   = errors.New("stale request timestamp")
	ErrInvalidSignature = errors.New("invalid request signature")
)

type callerKey struct{}

// Verifier checks that the wallet named in X-Wallet-Address signed the
// request. With Disabled set the address is trusted as given.
type Verifier struct {
	Disabled bool
	MaxSkew  time.Duration
	Now      func() time.Time
}

func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, err := v.verify(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
	})
}

func (v *Verifier) verify(r *http.Request) (solana.PublicKey, error) {
	addrHeader := r.Header.Get(HeaderAddress)
	if addrHeader == "" {
		return solana.PublicKey{}, ErrMissingAddress
	}
	caller, err := solana.PublicKeyFromBase58(addrHeader)
	if err != nil {
		return solana.PublicKey{}, ErrInvalidAddress
	}
	if v.Disabled {
		return caller, nil
	}

	sigHeader := r.Header.Get(HeaderSignature)
	if sigHeader == "" {
		return solana.PublicKey{}, ErrMissingSignature
	}
	sig, err := solana.SignatureFromBase58(sigHeader)
	if err != nil {
		return solana.PublicKey{}, ErrInvalidSignature
	}
	tsHeader := r.Header.Get(HeaderTimestamp)
	if tsHeader == "" {
		return solana.PublicKey{}, ErrMissingTimestamp
	}
	ts, err := strconv.ParseInt(tsHeader, 10, 64)
	if err != nil {
		return solana.PublicKey{}, ErrMissingTimestamp
	}

	now := time.Now()
	if v.Now != nil {
		now = v.Now()
	}
	reqTime := time.Unix(ts, 0)
	if now.Sub(reqTime) > v.MaxSkew || reqTime.Sub(now) > v.MaxSkew {
		return solana.PublicKey{}, ErrStaleTimestamp
	}

	body, err := readBody(r)
	if err != nil {
		return solana.PublicKey{}, err
	}
	if !sig.Verify(caller, Message(tsHeader, r.Method, r.URL.Path, body)) {
		return solana.PublicKey{}, ErrInvalidSignature
	}
	return caller, nil
}

// Message is the byte string a wallet signs for a request.
func Message(timestamp, method, path string, body []byte) []byte {
	msg := make([]byte, 0, len(timestamp)+len(method)+len(path)+len(body)+3)
	msg = append(msg, timestamp...)
	msg = append(msg, '\n')
	msg = append(msg, method...)
	msg = append(msg, ' ')
	msg = append(msg, path...)
	msg = append(msg, '\n')
	return append(msg, body...)
}

// SignRequest sets the authentication headers on req, signing with key.
// The request body is read and restored.
func SignRequest(req *http.Request, key solana.PrivateKey, now time.Time) error {
	body, err := readBody(req)
	if err != nil {
		return err
	}
	ts := strconv.FormatInt(now.Unix(), 10)
	sig, err := key.Sign(Message(ts, req.Method, req.URL.Path, body))
	if err != nil {
		return err
	}
	req.Header.Set(HeaderAddress, key.PublicKey().String())
	req.Header.Set(HeaderSignature, sig.String())
	req.Header.Set(HeaderTimestamp, ts)
	return nil
}

func WithCaller(ctx context.Context, caller solana.PublicKey) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// CallerFrom returns the authenticated wallet stored by the middleware.
func CallerFrom(ctx context.Context) (solana.PublicKey, bool) {
	caller, ok := ctx.Value(callerKey{}).(solana.PublicKey)
	return caller, ok
}

func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return []byte{}, nil
	}
	defer r.Body.Close()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}
