package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	otelruntime "go.opentelemetry.io/contrib/instrumentation/runtime"

	"github.com/pharmatech-uz/pharmacy-core/internal/cart"
	"github.com/pharmatech-uz/pharmacy-core/internal/catalog"
	"github.com/pharmatech-uz/pharmacy-core/internal/messaging"
	"github.com/pharmatech-uz/pharmacy-core/internal/notify"
	"github.com/pharmatech-uz/pharmacy-core/internal/orders"
	"github.com/pharmatech-uz/pharmacy-core/internal/payments"
	"github.com/pharmatech-uz/pharmacy-core/internal/prescriptions"
	"github.com/pharmatech-uz/pharmacy-core/internal/telemetry"
)

const notificationsTopic = "pharmacy.notifications"

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, "pharmacy-api", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider("pharmacy-api", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize meter", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(ctx) }()

	if err := otelruntime.Start(); err != nil {
		logger.Error("failed to start runtime metrics", "error", err)
		os.Exit(1)
	}

	postgresURL := os.Getenv("POSTGRES_URL")
	if postgresURL == "" {
		logger.Error("POSTGRES_URL environment variable is required")
		os.Exit(1)
	}

	db, err := telemetry.OpenDB("postgres", postgresURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := db.Ping(); err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	var notifier notify.Notifier = notify.Nop{}
	if kafkaBrokers := os.Getenv("KAFKA_BROKERS"); kafkaBrokers != "" {
		producer := messaging.NewProducer(strings.Split(kafkaBrokers, ","), notificationsTopic)
		defer func() { _ = producer.Close() }()
		notifier = notify.NewKafkaNotifier(producer)
	} else {
		logger.Warn("KAFKA_BROKERS not set, notifications disabled")
	}

	clickCfg := payments.ClickConfig{
		ServiceID: os.Getenv("CLICK_SERVICE_ID"),
		SecretKey: os.Getenv("CLICK_SECRET_KEY"),
	}
	paymeCfg := payments.PaymeConfig{
		SecretKey: os.Getenv("PAYME_SECRET_KEY"),
	}
	if clickCfg.SecretKey == "" || paymeCfg.SecretKey == "" {
		logger.Error("CLICK_SECRET_KEY and PAYME_SECRET_KEY environment variables are required")
		os.Exit(1)
	}

	stock := catalog.NewStockLedger()

	productRepo := catalog.NewProductRepository(db)
	cartRepo := cart.NewCartRepository(db)
	orderRepo := orders.NewOrderRepository(db)
	paymentRepo := payments.NewPaymentRepository(db)
	prescriptionRepo := prescriptions.NewPrescriptionRepository(db)

	orderSvc := orders.NewService(db, stock, notifier, logger)
	paymentSvc := payments.NewService(db, notifier, logger)
	prescriptionSvc := prescriptions.NewService(db, prescriptionRepo, notifier, logger)

	clickAdapter := payments.NewClickAdapter(clickCfg, paymentSvc, paymentRepo, logger)
	paymeAdapter := payments.NewPaymeAdapter(paymeCfg, paymentSvc, paymentRepo, logger)

	productHandler := catalog.NewHandler(productRepo, logger)
	cartHandler := cart.NewHandler(cartRepo, logger)
	orderHandler := orders.NewHandler(orderRepo, orderSvc, logger)
	paymentHandler := payments.NewHandler(paymentRepo, paymentSvc, clickAdapter, paymeAdapter, logger)
	prescriptionHandler := prescriptions.NewHandler(prescriptionRepo, prescriptionSvc, logger)

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", metricsHandler)

	mux.HandleFunc("GET /products", telemetry.WithHTTPRoute(productHandler.HandleList))
	mux.HandleFunc("GET /products/{id}", telemetry.WithHTTPRoute(productHandler.HandleGet))

	mux.HandleFunc("GET /cart", telemetry.WithHTTPRoute(cartHandler.HandleGet))
	mux.HandleFunc("POST /cart/items", telemetry.WithHTTPRoute(cartHandler.HandleAddItem))
	mux.HandleFunc("PATCH /cart/items/{itemId}", telemetry.WithHTTPRoute(cartHandler.HandleUpdateItem))
	mux.HandleFunc("DELETE /cart/items/{itemId}", telemetry.WithHTTPRoute(cartHandler.HandleRemoveItem))

	mux.HandleFunc("POST /orders/checkout", telemetry.WithHTTPRoute(orderHandler.HandleCheckout))
	mux.HandleFunc("GET /orders", telemetry.WithHTTPRoute(orderHandler.HandleList))
	mux.HandleFunc("GET /orders/{id}", telemetry.WithHTTPRoute(orderHandler.HandleGet))
	mux.HandleFunc("GET /orders/{id}/history", telemetry.WithHTTPRoute(orderHandler.HandleHistory))
	mux.HandleFunc("PATCH /orders/{id}/status", telemetry.WithHTTPRoute(orderHandler.HandleChangeStatus))
	mux.HandleFunc("POST /orders/{id}/cancel", telemetry.WithHTTPRoute(orderHandler.HandleCancel))
	mux.HandleFunc("POST /orders/{id}/courier", telemetry.WithHTTPRoute(orderHandler.HandleAssignCourier))

	mux.HandleFunc("POST /payments", telemetry.WithHTTPRoute(paymentHandler.HandleCreate))
	mux.HandleFunc("GET /payments", telemetry.WithHTTPRoute(paymentHandler.HandleList))
	mux.HandleFunc("GET /payments/{paymentId}", telemetry.WithHTTPRoute(paymentHandler.HandleGet))
	mux.HandleFunc("GET /payments/{paymentId}/logs", telemetry.WithHTTPRoute(paymentHandler.HandleLogs))
	mux.HandleFunc("POST /payments/webhook/click/prepare", telemetry.WithHTTPRoute(paymentHandler.HandleClickPrepare))
	mux.HandleFunc("POST /payments/webhook/click/complete", telemetry.WithHTTPRoute(paymentHandler.HandleClickComplete))
	mux.HandleFunc("POST /payments/webhook/payme", telemetry.WithHTTPRoute(paymentHandler.HandlePayme))

	mux.HandleFunc("POST /prescriptions", telemetry.WithHTTPRoute(prescriptionHandler.HandleCreate))
	mux.HandleFunc("GET /prescriptions", telemetry.WithHTTPRoute(prescriptionHandler.HandleList))
	mux.HandleFunc("GET /prescriptions/pending", telemetry.WithHTTPRoute(prescriptionHandler.HandleListPending))
	mux.HandleFunc("GET /prescriptions/{prescriptionId}", telemetry.WithHTTPRoute(prescriptionHandler.HandleGet))
	mux.HandleFunc("POST /prescriptions/{prescriptionId}/images", telemetry.WithHTTPRoute(prescriptionHandler.HandleAddImage))
	mux.HandleFunc("POST /prescriptions/{prescriptionId}/approve", telemetry.WithHTTPRoute(prescriptionHandler.HandleApprove))
	mux.HandleFunc("POST /prescriptions/{prescriptionId}/reject", telemetry.WithHTTPRoute(prescriptionHandler.HandleReject))

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	server := &http.Server{
		Addr: ":" + port,
		Handler: otelhttp.NewHandler(mux, "pharmacy-api",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				if r.Pattern != "" {
					return r.Pattern
				}
				return r.Method + " " + r.URL.Path
			}),
		),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting pharmacy api", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
