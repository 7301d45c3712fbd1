package middleware

import (
	"net"
	"net/http"

	"github.com/MrEthical07/cyclecore"
)

// ClientIP attaches the remote host of the request to its context. Run it after a proxy-aware
// middleware such as chi's RealIP when the service sits behind a load balancer.
func ClientIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(cyclecore.WithClientIP(r.Context(), remoteHost(r))))
	})
}

func remoteHost(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
