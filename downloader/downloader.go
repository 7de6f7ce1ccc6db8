// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package downloader fetches files from the product repository, which
// requires a client certificate.
package downloader

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/renameio"
	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/juju/retry"
)

var logger = loggo.GetLogger("juju.va.downloader")

// Credentials locates the PEM files used for mutual TLS.
type Credentials struct {
	CACert     string
	ClientCert string
	ClientKey  string
}

// TLSConfig returns a TLS configuration trusting only CACert and
// presenting the client certificate.
func (c Credentials) TLSConfig() (*tls.Config, error) {
	caPEM, err := os.ReadFile(c.CACert)
	if err != nil {
		return nil, errors.Annotate(err, "reading CA certificate")
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return nil, errors.NotValidf("CA certificate %q", c.CACert)
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, errors.Annotate(err, "loading client certificate")
	}
	return &tls.Config{
		RootCAs:      pool,
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// Config holds the dependencies of a Downloader.
type Config struct {
	// Client performs the requests. NewClient builds one for
	// Credentials.
	Client *http.Client

	Clock    clock.Clock
	Attempts int
	Delay    time.Duration
}

// Validate returns an error if the config cannot be used.
func (config Config) Validate() error {
	if config.Client == nil {
		return errors.NotValidf("nil Client")
	}
	if config.Clock == nil {
		return errors.NotValidf("nil Clock")
	}
	if config.Attempts < 1 {
		return errors.NotValidf("Attempts %d", config.Attempts)
	}
	if config.Delay <= 0 {
		return errors.NotValidf("Delay %v", config.Delay)
	}
	return nil
}

// NewClient returns an HTTP client authenticating with creds.
func NewClient(creds Credentials) (*http.Client, error) {
	tlsConfig, err := creds.TLSConfig()
	if err != nil {
		return nil, errors.Trace(err)
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = tlsConfig
	return &http.Client{
		Transport: transport,
		Timeout:   10 * time.Minute,
	}, nil
}

// Downloader downloads files to disk, retrying transient failures.
type Downloader struct {
	config Config
}

// New returns a Downloader with the given config.
func New(config Config) (*Downloader, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &Downloader{config: config}, nil
}

// statusError is returned for unexpected HTTP responses.
type statusError struct {
	url    string
	status string
	code   int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("bad http response %v from %q", e.status, e.url)
}

// isTransient reports whether a failed download is worth another try.
func isTransient(err error) bool {
	var statusErr *statusError
	if errors.As(err, &statusErr) {
		return statusErr.code >= http.StatusInternalServerError || statusErr.code == http.StatusTooManyRequests
	}
	var netErr net.Error
	return errors.As(err, &netErr) || errors.Is(err, io.ErrUnexpectedEOF)
}

// Download fetches url into the file at dest, which is replaced
// atomically once the whole body has been received.
func (d *Downloader) Download(ctx context.Context, url, dest string) error {
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			return d.download(ctx, url, dest)
		},
		IsFatalError: func(err error) bool {
			return ctx.Err() != nil || !isTransient(err)
		},
		NotifyFunc: func(err error, attempt int) {
			logger.Warningf("download attempt %d of %q failed: %v", attempt, url, err)
		},
		Attempts: d.config.Attempts,
		Delay:    d.config.Delay,
		Clock:    d.config.Clock,
		Stop:     ctx.Done(),
	})
	if retry.IsAttemptsExceeded(err) || retry.IsRetryStopped(err) {
		err = retry.LastError(err)
	}
	return errors.Annotatef(err, "cannot download %q", url)
}

func (d *Downloader) download(ctx context.Context, url, dest string) (err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errors.Trace(err)
	}
	resp, err := d.config.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &statusError{url: url, status: resp.Status, code: resp.StatusCode}
	}

	f, err := renameio.TempFile("", dest)
	if err != nil {
		return errors.Trace(err)
	}
	defer func() {
		if err := f.Cleanup(); err != nil {
			logger.Debugf("cannot remove temporary file: %v", err)
		}
	}()
	n, err := io.Copy(f, resp.Body)
	if err != nil {
		return err
	}
	if err := f.CloseAtomicallyReplace(); err != nil {
		return errors.Trace(err)
	}
	logger.Infof("downloaded %s from %q to %q", humanize.Bytes(uint64(n)), url, dest)
	return nil
}
