package http_server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"interviewsense/internal/http/meetinghandler"
	"interviewsense/internal/services/meeting"
	"interviewsense/internal/ws"

	"github.com/abrar71/swaggerfilesv2" // swagger embed files
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type httpServer struct {
	listenPort     uint16
	srv            http.Server
	ln             net.Listener
	meetingService meeting.IMeetingService
	wsSrv          *ws.WsServer
	authRequired   bool
	ctx            context.Context
}

func NewHttpServer(ctx context.Context, listenPort uint16, wsSrv *ws.WsServer, meetingService meeting.IMeetingService, authRequired bool) *httpServer {
	return &httpServer{
		listenPort:     listenPort,
		wsSrv:          wsSrv,
		meetingService: meetingService,
		authRequired:   authRequired,
		ctx:            ctx,
	}
}

// Routes builds the gin engine with every HTTP and websocket route.
func (h *httpServer) Routes() *gin.Engine {
	routerEngine := gin.New()

	// Swagger UI and API specs
	routerEngine.StaticFS("/swagger-apis", http.FS(swaggerfilesv2.FS))
	routerEngine.Static("/api-specs", "api_specs")

	routerEngine.Use(ginzap.GinzapWithConfig(zap.L(), &ginzap.Config{
		TimeFormat: time.RFC3339,
		UTC:        true,
		SkipPaths:  []string{"/health", "/metrics"},
	}))
	routerEngine.Use(ginzap.RecoveryWithZap(zap.L(), true))

	routerEngine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	routerEngine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// websocket endpoints
	routerEngine.GET("/ws/signal/:room", h.wsSrv.HandleSignal)
	routerEngine.GET("/ws/emotion/:room", h.wsSrv.HandleProducer)
	routerEngine.GET("/ws/insights/:room", h.wsSrv.HandleObserver)

	// REST API
	mh := meetinghandler.New(h.meetingService, h.wsSrv, h.authRequired)
	mh.Register(routerEngine)

	return routerEngine
}

func (h *httpServer) Start() error {
	var err error
	listenAddr := fmt.Sprintf(":%d", h.listenPort)
	h.ln, err = net.Listen("tcp", listenAddr)
	if err != nil {
		return err
	}

	h.srv = http.Server{
		Handler:           h.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	zap.L().Info("http.listen", zap.String("addr", listenAddr))

	go func() {
		<-h.ctx.Done()
		_ = h.Dispose()
	}()

	if err := h.srv.Serve(h.ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Dispose gracefully shuts the HTTP server down. Start calls it once the
// server context is cancelled. It waits up to 10 s for in-flight requests.
func (h *httpServer) Dispose() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := h.srv.Shutdown(ctx); err != nil {
		zap.L().Error("http_dispose", zap.Error(err))
		return err
	}
	return nil
}
