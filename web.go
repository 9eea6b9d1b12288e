package main

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
)

const (
	timeout time.Duration = 10 * time.Second
)

func securityHeaders(cfg *Config, w http.ResponseWriter) {
	w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
	w.Header().Set("Cross-Origin-Resource-Policy", "same-site")
	w.Header().Set("Permissions-Policy", "geolocation=(), midi=(), sync-xhr=(), microphone=(), camera=(), magnetometer=(), gyroscope=(), fullscreen=(), payment=()")
	w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Security-Policy", "default-src 'self'")

	if cfg.scheme() == "https" {
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
	}
}

func realIP(r *http.Request) string {
	host, _, _ := net.SplitHostPort(r.RemoteAddr)
	if ip := r.Header.Get("CF-Connecting-IP"); ip != "" {
		if net.ParseIP(ip) != nil {
			host = ip
		}
	} else if ip := r.Header.Get("X-Real-IP"); ip != "" {
		if net.ParseIP(ip) != nil {
			host = ip
		}
	}
	if host == "" {
		host = r.RemoteAddr
	}
	return host
}

func serveVersion(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		startTime := time.Now()

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		securityHeaders(cfg, w)
		w.WriteHeader(http.StatusOK)

		written, err := w.Write([]byte("shroom v" + releaseVersion + "\n"))
		if err != nil {
			errs <- err

			return
		}

		logf(cfg, "SERVE: Version page (%d B) to %s in %s",
			written,
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	Subprotocols:    subprotocols,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// serveWebSocket upgrades the request and runs the connection until it closes.
// The handler returns only after the connection's players have been removed.
func serveWebSocket(cfg *Config, reg *Registry, router *Router) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		ip := realIP(r)

		if err := reg.CanAccept(ip); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}

		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logf(cfg, "SERVE: Upgrade for %s failed: %v", ip, err)
			return
		}

		c := reg.Add(ws, ip)
		logf(cfg, "SERVE: Websocket %s opened by %s (%s)", c.ID(), ip, c.codec.name)

		go c.writePump()
		c.readPump(router.Handle)

		router.Disconnect(c)
		reg.Remove(c)

		logf(cfg, "SERVE: Websocket %s closed", c.ID())
	}
}

// serveRoot answers websocket upgrades on the bare root path, which is where
// existing clients connect, and the home page otherwise.
func serveRoot(cfg *Config, ws httprouter.Handle) httprouter.Handle {
	home := serveHomePage(cfg)

	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		if websocket.IsWebSocketUpgrade(r) {
			ws(w, r, p)
			return
		}
		home(w, r, p)
	}
}

// newRouter wires every HTTP route onto a fresh router.
func newRouter(cfg *Config, dir *Directory, reg *Registry, errs chan<- error) *httprouter.Router {
	mux := httprouter.New()

	mux.PanicHandler = func(w http.ResponseWriter, r *http.Request, i any) {
		cfg.logger.Error("handler panic", zap.Any("panic", i), zap.String("path", r.URL.Path))

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		securityHeaders(cfg, w)
		w.WriteHeader(http.StatusInternalServerError)

		io.WriteString(w, newPage("Server Error", "An error has occurred. Please try again."))
	}

	ws := serveWebSocket(cfg, reg, NewRouter(dir, cfg.logger.Named("router")))

	root := cfg.prefix + "/"

	mux.GET(root, serveRoot(cfg, ws))

	mux.GET(cfg.prefix+"/ws", ws)

	mux.GET(cfg.prefix+"/healthz", serveHealthCheck(cfg, dir, reg, errs))

	mux.GET(cfg.prefix+"/robots.txt", serveRobots(cfg, errs))

	mux.GET(cfg.prefix+"/version", serveVersion(cfg, errs))

	mux.GET(cfg.prefix+"/rooms/:code", serveRoomInfo(cfg, dir, errs))

	mux.GET(cfg.prefix+"/rooms/:code/qr", serveRoomQR(cfg, dir))

	if cfg.profile {
		registerProfileHandlers(cfg, mux)
	}

	return mux
}

func ServePage(ctx context.Context, cfg *Config) error {
	var err error

	timeZone := os.Getenv("TZ")
	if timeZone != "" {
		time.Local, err = time.LoadLocation(timeZone)
		if err != nil {
			return err
		}
	}

	logf(cfg, "START: shroom v%s", releaseVersion)

	cfg.prefix = strings.TrimSuffix(cfg.prefix, "/")

	dir := NewDirectory(ctx, cfg.spawnInterval, cfg.logger.Named("directory"))
	defer dir.Close()

	reg := NewRegistry(cfg.maxConns, cfg.maxConnsPerIP, cfg.writeTimeout, cfg.logger.Named("conn"))

	errs := make(chan error, 64)

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.bind, strconv.Itoa(cfg.port)),
		Handler:           newRouter(cfg, dir, reg, errs),
		IdleTimeout:       10 * time.Minute,
		ReadHeaderTimeout: timeout,
	}

	go func() {
		for err := range errs {
			cfg.logger.Warn("response write failed", zap.Error(err))
		}
	}()

	serveErr := make(chan error, 1)

	go func() {
		var err error
		cfg.logger.Info("listening",
			zap.String("url", cfg.scheme()+"://"+srv.Addr+cfg.prefix+"/"),
		)
		if cfg.tlsKey != "" && cfg.tlsCert != "" {
			err = srv.ListenAndServeTLS(cfg.tlsCert, cfg.tlsKey)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return err
		}
	}

	cfg.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	reg.CloseAll()

	return nil
}
