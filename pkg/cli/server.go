package cli

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/mchmarny/wilson/pkg/data"
	"github.com/mchmarny/wilson/pkg/frame"
	"github.com/mchmarny/wilson/pkg/metrics"
	"github.com/mchmarny/wilson/pkg/score"
	"github.com/mchmarny/wilson/pkg/transform"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v3"
)

const (
	portFlag = "port"

	serverShutdownWaitSeconds = 5
	serverTimeoutSeconds      = 300
	serverMaxHeaderBytes      = 20
	serverMaxBodyBytes        = 32 << 20
	serverPortDefault         = 8080

	csvContentType  = "text/csv"
	jsonContentType = "application/json"
)

func newServerCmd() *cli.Command {
	return &cli.Command{
		Name:    "server",
		Aliases: []string{"serve"},
		Usage:   "Start local HTTP scoring server",
		Action:  cmdStartServer,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  portFlag,
				Usage: "Port on which the server will listen",
				Value: serverPortDefault,
			},
		},
	}
}

func cmdStartServer(ctx context.Context, cmd *cli.Command) error {
	cfg := getConfig(cmd)
	address := fmt.Sprintf("127.0.0.1:%d", cmd.Int(portFlag))

	calc, err := cfg.Config.Calculator()
	if err != nil {
		return err
	}

	db, err := cfg.DB()
	if err != nil {
		return err
	}

	s := &http.Server{
		Addr:           address,
		Handler:        makeRouter(cfg, calc, db),
		ReadTimeout:    serverTimeoutSeconds * time.Second,
		WriteTimeout:   serverTimeoutSeconds * time.Second,
		MaxHeaderBytes: 1 << serverMaxHeaderBytes,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	slog.Info("server started", "address", "http://"+address, "calculator", calc.String())

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("error starting server: %w", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), serverShutdownWaitSeconds*time.Second)
	defer cancel()

	if err := s.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("error shutting down server", "error", err)
	}
	slog.Info("server stopped")
	return nil
}

func makeRouter(cfg *appConfig, calc *score.Calculator, db *sql.DB) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /score", scoreAPIHandler(calc))
	mux.HandleFunc("POST /transform", transformAPIHandler(cfg))
	mux.HandleFunc("GET /data/rank", rankAPIHandler(db))
	mux.Handle("GET /metrics", promhttp.Handler())

	return mux
}

func scoreAPIHandler(calc *score.Calculator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		positives, err := queryInt64(r, "positives")
		if err != nil {
			writeError(w, err)
			return
		}
		negatives, err := queryInt64(r, "negatives")
		if err != nil {
			writeError(w, err)
			return
		}

		res, err := scorePair(calc, positives, negatives)
		metrics.ObserveScores(metrics.SurfaceHTTP, 1, err)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// transformAPIHandler scores a CSV body. Column names and the calculator come
// from the query string, falling back to the config.
func transformAPIHandler(cfg *appConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, err := transformFromQuery(cfg, r)
		if err != nil {
			writeError(w, err)
			return
		}
		if err := t.Validate(); err != nil {
			writeError(w, err)
			return
		}

		in, err := frame.ReadCSV(http.MaxBytesReader(w, r.Body, serverMaxBodyBytes))
		if err != nil {
			writeError(w, fmt.Errorf("%w: %w", score.ErrInvalidArgument, err))
			return
		}

		out, err := t.Transform(r.Context(), in)
		if err != nil {
			writeError(w, err)
			return
		}

		w.Header().Set("Content-Type", csvContentType)
		w.WriteHeader(http.StatusOK)
		if err := out.WriteCSV(w); err != nil {
			slog.Error("error writing csv response", "error", err)
		}
	}
}

func transformFromQuery(cfg *appConfig, r *http.Request) (*transform.WilsonScoreInterval, error) {
	q := r.URL.Query()
	t := cfg.NewTransform()

	if v := q.Get("positive_col"); v != "" {
		t.SetPositiveCol(v)
	}
	if v := q.Get("negative_col"); v != "" {
		t.SetNegativeCol(v)
	}
	if v := q.Get("output_col"); v != "" {
		t.SetOutputCol(v)
	}
	if v := q.Get("method"); v != "" {
		t.SetMethod(score.Method(v))
	}
	if v := q.Get("confidence"); v != "" {
		c, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: confidence: %s", score.ErrInvalidArgument, v)
		}
		t.SetConfidence(c)
	}
	return t, nil
}

func rankAPIHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := queryResultLimitDefault
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				writeError(w, fmt.Errorf("%w: limit: %s", score.ErrInvalidArgument, v))
				return
			}
			limit = n
		}

		list, err := data.RankObservations(db, limit)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func queryInt64(r *http.Request, key string) (int64, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, fmt.Errorf("%w: %s required", score.ErrInvalidArgument, key)
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %s", score.ErrInvalidArgument, key, v)
	}
	return n, nil
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, score.ErrInvalidArgument) || errors.Is(err, score.ErrConfigurationMissing) {
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", jsonContentType)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("error encoding response", "error", err)
	}
}
