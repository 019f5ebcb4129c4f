package main

import (
	"context"
	"log"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.25.0"

	"chat-sync/internal/api"
	"chat-sync/internal/engine"
	"chat-sync/internal/models"
	"chat-sync/internal/push"
	"chat-sync/internal/rabbitmq"
	"chat-sync/internal/telemetry"
)

func main() {
	ctx := context.Background()

	shutdownTracer, err := initTracer(ctx, getEnv("OTLP_ENDPOINT", ""))
	if err != nil {
		log.Printf("tracing disabled: %v", err)
	}
	if shutdownTracer != nil {
		defer func() {
			if err := shutdownTracer(context.Background()); err != nil {
				log.Printf("tracer shutdown: %v", err)
			}
		}()
	}

	publisher := rabbitmq.NewPublisher(getEnv("AMQP_URL", ""), getEnv("AMQP_EXCHANGE", "chat_events"))
	defer publisher.Close()
	log.Printf("telemetry publisher mode=%s", rabbitmq.Mode(publisher))

	emitter := telemetry.NewAuditEmitter(publisher, "sync_audit.client", "chat-sync", getEnv("ENVIRONMENT", "dev"))

	client := api.NewClient(getEnv("API_BASE_URL", "http://localhost:8083"), getEnv("AUTH_TOKEN", ""))

	var eng *engine.Engine
	channel := push.NewChannel(getEnv("WS_URL", "ws://localhost:8083/ws"), getEnv("AUTH_TOKEN", ""), func(ev models.ChatEvent) {
		eng.HandleEvent(ev)
	})

	eng = engine.New(engine.Config{
		Service: client,
		Sender:  channel,
		Audit:   emitter,
		UserID:  getEnv("USER_ID", ""),
	})
	defer eng.Close()

	if err := channel.Connect(ctx); err != nil {
		log.Printf("push channel unavailable, running REST-only: %v", err)
	}
	defer channel.Close()

	if err := eng.RefreshChats(ctx); err != nil {
		log.Printf("initial chat list fetch failed: %v", err)
	}

	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("chat-sync"))

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	registerDebugRoutes(router, eng, emitter)

	addr := ":" + getEnv("DEBUG_PORT", "8086")
	if err := router.Run(addr); err != nil {
		log.Fatalf("debug server error: %v", err)
	}
}

// registerDebugRoutes exposes read-only state for diagnosis.
func registerDebugRoutes(router *gin.Engine, eng *engine.Engine, emitter *telemetry.AuditEmitter) {
	router.GET("/debug/chats", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"chats": eng.Chats()})
	})

	router.GET("/debug/chats/:chat_id/window", func(c *gin.Context) {
		chatID := c.Param("chat_id")
		msgs, err := eng.Window(chatID)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"messages":    msgs,
			"has_older":   eng.HasOlderMessages(chatID),
			"read_counts": eng.ReadCounts(chatID),
		})
	})

	router.GET("/debug/audit-test", func(c *gin.Context) {
		emitter.Emit(c.Request.Context(), "INFO", "audit test", "", "")
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

func initTracer(ctx context.Context, endpoint string) (func(context.Context) error, error) {
	if endpoint == "" {
		return nil, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName("chat-sync"),
		)),
	)
	otel.SetTracerProvider(provider)
	return provider.Shutdown, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}
