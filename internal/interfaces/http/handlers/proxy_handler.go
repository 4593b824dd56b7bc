package handlers

import (
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/renewguard/pkg/constants"
	"github.com/turtacn/renewguard/pkg/logger"
)

// ProxyHandler forwards admitted requests to the upstream application.
type ProxyHandler struct {
	proxy *httputil.ReverseProxy
}

// NewProxyHandler creates a reverse proxy to upstream. The request id is
// forwarded so upstream logs can be correlated.
func NewProxyHandler(upstream string, log logger.Logger) (*ProxyHandler, error) {
	target, err := url.Parse(upstream)
	if err != nil {
		return nil, err
	}
	log = log.WithComponent("proxy")

	rp := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
			if id, ok := pr.In.Context().Value(constants.ContextKeyRequestID).(string); ok {
				pr.Out.Header.Set(constants.HeaderRequestID, id)
			}
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			log.Error(r.Context(), "Upstream request failed", err, logger.Fields{"path": r.URL.Path})
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte(`{"error":"upstream unavailable","code":"BAD_GATEWAY"}`))
		},
	}
	return &ProxyHandler{proxy: rp}, nil
}

// Forward proxies the request.
func (h *ProxyHandler) Forward(c *gin.Context) {
	h.proxy.ServeHTTP(c.Writer, c.Request)
}

//Personal.AI order the ending
