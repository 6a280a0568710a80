package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"regexp"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"tripcost-scraper/internal/browserpool"
	"tripcost-scraper/internal/config"
	"tripcost-scraper/internal/models"
	"tripcost-scraper/internal/scraper"
)

var (
	dateFormat     = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	iataFormat     = regexp.MustCompile(`^[A-Za-z]{3}$`)
	currencyFormat = regexp.MustCompile(`^[A-Za-z]{3}$`)
)

// Handler serves the two scrape routes
type Handler struct {
	scraper *scraper.Scraper
	log     zerolog.Logger
}

func (h *Handler) flights(w http.ResponseWriter, r *http.Request) {
	if !prepare(w, r) {
		return
	}

	q := r.URL.Query()
	origin, destination := q.Get("origin"), q.Get("destination")
	date, currency := q.Get("date"), q.Get("currency")
	if !iataFormat.MatchString(origin) || !iataFormat.MatchString(destination) {
		errorResponse(w, http.StatusBadRequest, "origin and destination must be IATA codes")
		return
	}
	if !dateFormat.MatchString(date) {
		errorResponse(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	if currency == "" || !currencyFormat.MatchString(currency) {
		currency = "USD"
	}

	start := time.Now()
	result, err := h.scraper.ScrapeFlights(r.Context(), origin, destination, date, currency)
	if err != nil {
		h.scrapeError(w, err, "flights")
		return
	}

	h.log.Info().
		Str("route", origin+"-"+destination).
		Dur("took", time.Since(start)).
		Int("flights", len(result.Flights)).
		Msg("flights request served")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(result)
}

func (h *Handler) hotels(w http.ResponseWriter, r *http.Request) {
	if !prepare(w, r) {
		return
	}

	q := r.URL.Query()
	query := q.Get("query")
	checkIn, checkOut := q.Get("checkIn"), q.Get("checkOut")
	currency := q.Get("currency")
	if query == "" {
		errorResponse(w, http.StatusBadRequest, "missing \"query\" parameter")
		return
	}
	if !dateFormat.MatchString(checkIn) || !dateFormat.MatchString(checkOut) {
		errorResponse(w, http.StatusBadRequest, "checkIn and checkOut must be YYYY-MM-DD")
		return
	}
	if currency == "" || !currencyFormat.MatchString(currency) {
		currency = "USD"
	}

	start := time.Now()
	result, err := h.scraper.ScrapeHotels(r.Context(), query, checkIn, checkOut, currency)
	if err != nil {
		h.scrapeError(w, err, "hotels")
		return
	}

	h.log.Info().
		Str("query", query).
		Dur("took", time.Since(start)).
		Int("hotels", len(result.Hotels)).
		Msg("hotels request served")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(result)
}

// scrapeError maps scrape failures onto HTTP statuses. The caller of
// this service treats anything non-200 as its cue to fall back to a
// paid structured API.
func (h *Handler) scrapeError(w http.ResponseWriter, err error, kind string) {
	h.log.Error().Err(err).Str("kind", kind).Msg("scrape failed")

	var captchaErr *models.CaptchaBlockError
	switch {
	case errors.As(err, &captchaErr):
		errorResponse(w, http.StatusServiceUnavailable, "blocked by site protection")
	case errors.Is(err, context.DeadlineExceeded):
		errorResponse(w, http.StatusGatewayTimeout, "scrape took too long")
	case errors.Is(err, models.ErrNoBrowserExecutable):
		errorResponse(w, http.StatusInternalServerError, "no browser installed")
	default:
		errorResponse(w, http.StatusBadGateway, "scrape failed")
	}
}

// prepare sets CORS and content headers and handles preflight.
// Reports whether the request should proceed.
func prepare(w http.ResponseWriter, r *http.Request) bool {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	w.Header().Set("Access-Control-Allow-Methods", "GET,OPTIONS")

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return false
	}
	if r.Method != http.MethodGet {
		errorResponse(w, http.StatusMethodNotAllowed, "method not allowed")
		return false
	}
	return true
}

func errorResponse(w http.ResponseWriter, statusCode int, message string) {
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(models.ErrorResponse{Error: message})
}

func main() {
	log := zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfg := config.DefaultConfig()
	pool := browserpool.NewPool(cfg.Pool, cfg.Scrape.UserAgents, log)
	handler := &Handler{
		scraper: scraper.NewScraper(pool, cfg.Scrape, log),
		log:     log,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/flights", handler.flights)
	mux.HandleFunc("/api/hotels", handler.hotels)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	server := &http.Server{Addr: ":" + port, Handler: mux}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("port", port).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("shutting down")
		pool.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}
