// Package transport opens the byte streams the chat protocol runs on: TCP
// with optional TLS, and binary WebSocket messages.
package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"os"

	"golang.org/x/net/netutil"

	"github.com/codefionn/amchat/internal/consts"
)

// ErrNoCertificates is returned when a CA file contains no usable PEM block.
var ErrNoCertificates = errors.New("no certificates found")

// ServerTLSConfig loads a certificate and key pair for the listener. Both
// paths empty means plain TCP and returns a nil config.
func ServerTLSConfig(certFile, keyFile string) (*tls.Config, error) {
	if certFile == "" && keyFile == "" {
		return nil, nil
	}
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("load key pair: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// ClientTLSConfig builds the dialer's TLS settings. caFile may be empty to use
// the system roots.
func ClientTLSConfig(serverName, caFile string, insecureSkipVerify bool) (*tls.Config, error) {
	cfg := &tls.Config{
		ServerName:         serverName,
		InsecureSkipVerify: insecureSkipVerify,
		MinVersion:         tls.VersionTLS12,
	}
	if caFile == "" {
		return cfg, nil
	}

	pem, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("read CA file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("%s: %w", caFile, ErrNoCertificates)
	}
	cfg.RootCAs = pool
	return cfg, nil
}

// Listen opens a TCP listener on addr that accepts at most maxConns
// concurrent connections, wrapped in TLS when tlsCfg is set. Connections
// beyond the limit wait in the accept queue.
func Listen(addr string, tlsCfg *tls.Config, maxConns int) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	if maxConns > 0 {
		ln = netutil.LimitListener(ln, maxConns)
	}
	if tlsCfg != nil {
		ln = tls.NewListener(ln, tlsCfg)
	}
	return ln, nil
}

// Dial connects to addr, performing the TLS handshake before returning when
// tlsCfg is set.
func Dial(ctx context.Context, addr string, tlsCfg *tls.Config) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: consts.Timeout10Seconds}
	if tlsCfg == nil {
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", addr, err)
		}
		return conn, nil
	}

	tlsDialer := &tls.Dialer{NetDialer: dialer, Config: tlsCfg}
	conn, err := tlsDialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s (tls): %w", addr, err)
	}
	return conn, nil
}

// Handshake completes a server-side TLS handshake so that failures are
// reported before any protocol byte is read. Non-TLS connections pass
// through.
func Handshake(ctx context.Context, conn net.Conn) error {
	tlsConn, ok := conn.(*tls.Conn)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, consts.Timeout10Seconds)
	defer cancel()
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		return fmt.Errorf("tls handshake: %w", err)
	}
	return nil
}
