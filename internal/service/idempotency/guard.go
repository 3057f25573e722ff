package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/workshop/internal/domain"
	"github.com/vladislavdragonenkov/workshop/internal/metrics"
)

// DefaultTTL — время жизни ключа, если не задано иное.
const DefaultTTL = 24 * time.Hour

// panicResponse сохраняется под ключом, если обработчик запаниковал.
var panicResponse = Response{
	Status: http.StatusInternalServerError,
	Body:   []byte(`{"error":{"code":"internal","message":"internal error"}}`),
}

// Response — сохранённый ответ на запрос с ключом.
type Response struct {
	Status int
	Body   []byte
}

// Guard пропускает команду, повторно отданную с тем же ключом, только один раз.
type Guard struct {
	repo    domain.IdempotencyRepository
	ttl     time.Duration
	logger  *log.Entry
	metrics *metrics.IdempotencyMetrics
}

// NewGuard создаёт guard поверх репозитория ключей.
func NewGuard(repo domain.IdempotencyRepository, ttl time.Duration, logger *log.Entry, m *metrics.IdempotencyMetrics) *Guard {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = log.WithField("component", "idempotency")
	}
	return &Guard{repo: repo, ttl: ttl, logger: logger, metrics: m}
}

// HashRequest строит хэш запроса по его частям (метод, актор, тело).
func HashRequest(parts ...[]byte) string {
	h := sha256.New()
	for _, part := range parts {
		fmt.Fprintf(h, "%d:", len(part))
		h.Write(part)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Do выполняет fn под ключом key. Повтор завершённого запроса возвращает сохранённый ответ
// без вызова fn; повтор с другим телом даёт ErrIdempotencyHashMismatch, а запрос,
// который ещё выполняется, даёт ErrIdempotencyInProgress.
// Паника fn помечает ключ как FAILED и пробрасывается дальше.
func (g *Guard) Do(key, requestHash string, fn func() Response) (Response, bool, error) {
	record, err := g.repo.CreateProcessing(key, requestHash, time.Now().UTC().Add(g.ttl))
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrIdempotencyHashMismatch):
		g.metrics.RecordRequest("conflict")
		return Response{}, false, err
	case errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists):
		if record.Status == domain.IdempotencyStatusProcessing {
			g.metrics.RecordRequest("in_progress")
			return Response{}, false, domain.ErrIdempotencyInProgress
		}
		g.metrics.RecordRequest("replay")
		return Response{Status: record.HTTPStatus, Body: record.ResponseBody}, true, nil
	default:
		return Response{}, false, fmt.Errorf("reserve idempotency key: %w", err)
	}

	g.metrics.RecordRequest("new")
	resp := g.run(key, fn)

	finish := g.repo.MarkDone
	if resp.Status >= 400 {
		finish = g.repo.MarkFailed
	}
	if err := finish(key, resp.Body, resp.Status); err != nil {
		g.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to store idempotent response")
	}
	return resp, false, nil
}

func (g *Guard) run(key string, fn func() Response) Response {
	defer func() {
		if p := recover(); p != nil {
			if err := g.repo.MarkFailed(key, panicResponse.Body, panicResponse.Status); err != nil {
				g.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to release idempotency key after panic")
			}
			panic(p)
		}
	}()
	return fn()
}
