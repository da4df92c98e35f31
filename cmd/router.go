package main

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/capofinance/capo/internal/config"
	"github.com/capofinance/capo/internal/importer"
	"github.com/capofinance/capo/internal/model"
	"github.com/capofinance/capo/internal/report"
	"github.com/capofinance/capo/internal/store"
)

type serverEnv struct {
	store    store.Store
	importer *importer.Importer
}

func newRouter(env *serverEnv, cfg config.ServerConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 10 << 20
	}

	r.Route("/api", func(r chi.Router) {
		uploads := r.With(uploadLimiter(cfg))
		uploads.Post("/import/statement", env.handleImport(model.SourceStatement, maxUpload))
		uploads.Post("/import/bill", env.handleImport(model.SourceBill, maxUpload))

		r.Get("/imports", env.handleListRuns)
		r.Get("/transactions", env.handleListTransactions)
		r.Get("/reports/monthly", env.handleMonthlyReport)
	})

	return r
}

// uploadLimiter throttles file submissions. A single shared limiter is
// enough for a household-sized deployment.
func uploadLimiter(cfg config.ServerConfig) func(http.Handler) http.Handler {
	perSec := cfg.UploadRatePers
	if perSec <= 0 {
		perSec = 1
	}
	burst := cfg.UploadBurst
	if burst <= 0 {
		burst = 3
	}
	limiter := rate.NewLimiter(rate.Limit(perSec), burst)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "too many uploads, slow down"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// handleImport accepts a multipart upload with a "file" part and an
// optional "account" or "card" name and runs it through the pipeline.
func (env *serverEnv) handleImport(kind model.SourceKind, maxUpload int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUpload)
		if err := r.ParseMultipartForm(maxUpload); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid multipart body"})
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "file part is required"})
			return
		}
		defer file.Close() //nolint:errcheck

		data, err := io.ReadAll(file)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "read upload"})
			return
		}

		ctx := r.Context()
		var result *model.ImportResult
		switch kind {
		case model.SourceStatement:
			var accountID *int64
			if name := r.FormValue("account"); name != "" {
				acct, err := env.store.EnsureAccount(ctx, name)
				if err != nil {
					serverError(w, "resolve account", err)
					return
				}
				accountID = &acct.ID
			}
			result, err = env.importer.ImportStatement(ctx, header.Filename, data, accountID)
		default:
			var cardID *int64
			if name := r.FormValue("card"); name != "" {
				card, err := env.store.EnsureCreditCard(ctx, name)
				if err != nil {
					serverError(w, "resolve credit card", err)
					return
				}
				cardID = &card.ID
			}
			result, err = env.importer.ImportBill(ctx, header.Filename, data, cardID)
		}

		if err != nil {
			if result != nil && result.Status == model.ResultError {
				// Parse-level rejection: the file itself is unusable.
				writeJSON(w, http.StatusUnprocessableEntity, result)
				return
			}
			serverError(w, "import", err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func (env *serverEnv) handleListRuns(w http.ResponseWriter, r *http.Request) {
	filter := store.RunFilter{
		SourceKind: model.SourceKind(r.URL.Query().Get("source")),
		Limit:      queryInt(r, "limit"),
		Offset:     queryInt(r, "offset"),
	}
	runs, err := env.store.ListImportRuns(r.Context(), filter)
	if err != nil {
		serverError(w, "list imports", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"imports": runs})
}

func (env *serverEnv) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	filter := store.TxFilter{
		SourceKind: model.SourceKind(r.URL.Query().Get("source")),
		PersonID:   int64(queryInt(r, "person_id")),
		CategoryID: int64(queryInt(r, "category_id")),
		From:       queryTime(r, "from"),
		To:         queryTime(r, "to"),
		Limit:      queryInt(r, "limit"),
		Offset:     queryInt(r, "offset"),
	}
	txns, err := env.store.ListTransactions(r.Context(), filter)
	if err != nil {
		serverError(w, "list transactions", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": txns})
}

// handleMonthlyReport returns category totals for a month as JSON, or a
// full XLSX workbook when format=xlsx.
func (env *serverEnv) handleMonthlyReport(w http.ResponseWriter, r *http.Request) {
	year := queryInt(r, "year")
	month := queryInt(r, "month")
	if year == 0 || month < 1 || month > 12 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "year and month query params are required"})
		return
	}

	ctx := r.Context()
	spending, err := env.store.MonthlySpending(ctx, year, time.Month(month))
	if err != nil {
		serverError(w, "monthly spending", err)
		return
	}

	if !strings.EqualFold(r.URL.Query().Get("format"), "xlsx") {
		writeJSON(w, http.StatusOK, map[string]any{
			"year":     year,
			"month":    month,
			"spending": spending,
		})
		return
	}

	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	txns, err := env.store.ListTransactions(ctx, store.TxFilter{From: from, To: from.AddDate(0, 1, 0)})
	if err != nil {
		serverError(w, "list transactions", err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="spending.xlsx"`)
	monthly := report.Monthly{Year: year, Month: time.Month(month), Spending: spending, Transactions: txns}
	if err := report.WriteXLSX(w, monthly); err != nil {
		zap.L().Error("write report", zap.Error(err))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func serverError(w http.ResponseWriter, action string, err error) {
	zap.L().Error(action, zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}

func queryInt(r *http.Request, key string) int {
	n, _ := strconv.Atoi(r.URL.Query().Get(key))
	return n
}

func queryTime(r *http.Request, key string) time.Time {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return time.Time{}
}
