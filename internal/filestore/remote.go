package filestore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/vladislavdragonenkov/workshop/internal/domain"
)

const (
	defaultRemoteTimeout = 10 * time.Second
	uploadPath           = "/receipts"
)

// ErrUnavailable — файловое хранилище недоступно или разомкнут circuit breaker.
var ErrUnavailable = errors.New("receipt storage unavailable")

// errRejected отмечает отказ хранилища по вине запроса; такие ответы не размыкают breaker.
var errRejected = errors.New("receipt rejected by storage")

// RemoteConfig описывает внешнее хранилище файлов.
type RemoteConfig struct {
	BaseURL string
	Timeout time.Duration
	Logger  *log.Entry

	// Параметры circuit breaker; нулевые значения заменяются значениями по умолчанию.
	BreakerMaxRequests uint32
	BreakerInterval    time.Duration
	BreakerTimeout     time.Duration
	BreakerMinRequests uint32
	BreakerFailRatio   float64
}

// RemoteStore загружает чеки во внешнее хранилище по HTTP (multipart POST /receipts).
type RemoteStore struct {
	baseURL string
	client  *resty.Client
	breaker *gobreaker.CircuitBreaker
	logger  *log.Entry
}

type uploadResponse struct {
	URL string `json:"url"`
}

// NewRemoteStore создаёт клиент внешнего хранилища.
func NewRemoteStore(cfg RemoteConfig) (*RemoteStore, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("filestore base url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultRemoteTimeout
	}
	if cfg.BreakerMaxRequests == 0 {
		cfg.BreakerMaxRequests = 3
	}
	if cfg.BreakerInterval <= 0 {
		cfg.BreakerInterval = 15 * time.Second
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}
	if cfg.BreakerMinRequests == 0 {
		cfg.BreakerMinRequests = 3
	}
	if cfg.BreakerFailRatio <= 0 || cfg.BreakerFailRatio > 1 {
		cfg.BreakerFailRatio = 0.6
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.WithField("component", "filestore")
	}

	s := &RemoteStore{
		baseURL: baseURL,
		client: resty.New().
			SetTimeout(cfg.Timeout).
			SetRetryCount(0),
		logger: logger,
	}
	s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "filestore",
		MaxRequests: cfg.BreakerMaxRequests,
		Interval:    cfg.BreakerInterval,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.BreakerMinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.BreakerFailRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, errRejected) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(log.Fields{
				"circuit": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("filestore circuit breaker state changed")
		},
	})
	return s, nil
}

// State возвращает текущее состояние circuit breaker.
func (s *RemoteStore) State() gobreaker.State {
	return s.breaker.State()
}

// Put загружает файл и возвращает URL, который вернуло хранилище.
func (s *RemoteStore) Put(ctx context.Context, name, contentType string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", domain.Invalidf("receipt file is empty")
	}
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	result, err := s.breaker.Execute(func() (interface{}, error) {
		return s.upload(ctx, sanitizeName(name), contentType, data)
	})
	switch {
	case err == nil:
		return result.(string), nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "", fmt.Errorf("%w: circuit %s", ErrUnavailable, err)
	case errors.Is(err, errRejected):
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	default:
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
}

func (s *RemoteStore) upload(ctx context.Context, name, contentType string, data []byte) (string, error) {
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetMultipartField("file", name, contentType, bytes.NewReader(data)).
		Post(s.baseURL + uploadPath)
	if err != nil {
		return "", fmt.Errorf("upload receipt: %w", err)
	}

	status := resp.StatusCode()
	switch {
	case status >= 400 && status < 500:
		return "", fmt.Errorf("%w: status %d: %s", errRejected, status, strings.TrimSpace(resp.String()))
	case status != http.StatusOK && status != http.StatusCreated:
		return "", fmt.Errorf("storage returned status %d", status)
	}

	var body uploadResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	if strings.TrimSpace(body.URL) == "" {
		return "", errors.New("storage response has no url")
	}

	s.logger.WithFields(log.Fields{
		"file": name,
		"size": len(data),
	}).Debug("receipt uploaded")
	return body.URL, nil
}

var _ domain.ReceiptStore = (*RemoteStore)(nil)
