package main

import (
	"context"
	"crypto/tls"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/gorilla/handlers"
	"golang.org/x/crypto/acme/autocert"
)

// shutdownGrace bounds how long open requests may finish after a signal.
// SSE streams end as soon as their request context is cancelled.
const shutdownGrace = 5 * time.Second

// withServerHeader stamps every response and answers the HEAD / checks of
// uptime monitors without touching the mux.
func withServerHeader(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", "jigsaw-map/"+CompileVersion)

		if r.Method == http.MethodHead && r.URL.Path == "/" {
			w.WriteHeader(http.StatusOK)
			return
		}
		h.ServeHTTP(w, r)
	})
}

// accessLog writes Apache combined logs to stdout and gzips responses for
// clients that accept it.
func accessLog(h http.Handler) http.Handler {
	return handlers.CombinedLoggingHandler(os.Stdout, handlers.CompressHandler(h))
}

// servePlain serves HTTP on addr until ctx ends.
func servePlain(ctx context.Context, addr string, handler http.Handler) {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	go func() {
		log.Printf("HTTP server ➜ http://localhost%s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("HTTP server error: %v", err)
		}
	}()
	<-ctx.Done()
	shutdown(srv)
}

func shutdown(servers ...*http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("shutdown %s: %v", srv.Addr, err)
		}
	}
}

// serveWithDomain runs:
//   - :80  ACME HTTP-01 challenges plus a 301 redirect to https://<domain>/
//   - :443 HTTPS with Let's Encrypt certificates.
//
// When autocert cannot issue a certificate for an SNI (bare IPs, unknown
// hosts) the last certificate obtained for domain is served instead.
// Server errors are only logged.
func serveWithDomain(ctx context.Context, domain string, handler http.Handler) {
	certMgr := &autocert.Manager{
		Prompt: autocert.AcceptTOS,
		Cache:  autocert.DirCache("certs"),
		HostPolicy: func(ctx context.Context, host string) error {
			if host == domain || host == "www."+domain {
				return nil
			}
			if net.ParseIP(host) != nil {
				return nil
			}
			return errors.New("acme/autocert: host not configured")
		},
	}

	mux80 := http.NewServeMux()
	mux80.Handle("/.well-known/acme-challenge/", certMgr.HTTPHandler(nil))
	mux80.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		target := "https://" + domain + r.URL.RequestURI()
		http.Redirect(w, r, target, http.StatusMovedPermanently)
	})
	srv80 := &http.Server{
		Addr:              ":80",
		Handler:           mux80,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("HTTP  server (ACME+redirect) ➜ :80")
		if err := srv80.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("HTTP  server error: %v", err)
		}
	}()

	// daily renewal check, which also keeps the fallback certificate fresh
	var fallback atomic.Pointer[tls.Certificate]
	go func() {
		t := time.NewTicker(24 * time.Hour)
		defer t.Stop()
		for {
			if c, err := certMgr.GetCertificate(&tls.ClientHelloInfo{ServerName: domain}); err == nil {
				fallback.Store(c)
			} else {
				log.Printf("autocert renewal check: %v", err)
			}
			select {
			case <-ctx.Done():
				return
			case <-t.C:
			}
		}
	}()

	tlsCfg := certMgr.TLSConfig()
	tlsCfg.MinVersion = tls.VersionTLS12
	tlsCfg.GetCertificate = func(chi *tls.ClientHelloInfo) (*tls.Certificate, error) {
		c, err := certMgr.GetCertificate(chi)
		if err == nil {
			return c, nil
		}
		if fb := fallback.Load(); fb != nil {
			return fb, nil
		}
		return nil, err
	}

	srv443 := &http.Server{
		Addr:              ":443",
		Handler:           handler,
		TLSConfig:         tlsCfg,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	go func() {
		log.Printf("HTTPS server for %s ➜ :443", domain)
		if err := srv443.ListenAndServeTLS("", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("HTTPS server error: %v", err)
		}
	}()

	<-ctx.Done()
	shutdown(srv443, srv80)
}
