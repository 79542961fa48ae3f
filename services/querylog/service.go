package querylog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/longevity/longevity-backend/models"
	"github.com/longevity/longevity-backend/repositories"
	"go.uber.org/zap"
)

const insertTimeout = 5 * time.Second

// Service persists query logs asynchronously through a pool of workers
type Service struct {
	repo        repositories.QueryLogRepository
	logger      *zap.Logger
	entries     chan *models.QueryLog
	workerCount int
	bufferSize  int
	wg          sync.WaitGroup
	started     bool
	stopped     bool
	dropped     int64
	mu          sync.Mutex
}

// Config holds configuration for the Service
type Config struct {
	BufferSize  int // Size of the entry buffer channel
	WorkerCount int // Number of concurrent workers
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		BufferSize:  1000,
		WorkerCount: 2,
	}
}

// NewService creates a new query log service
func NewService(repo repositories.QueryLogRepository, logger *zap.Logger, config Config) *Service {
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultConfig().BufferSize
	}
	if config.WorkerCount <= 0 {
		config.WorkerCount = DefaultConfig().WorkerCount
	}

	return &Service{
		repo:        repo,
		logger:      logger,
		entries:     make(chan *models.QueryLog, config.BufferSize),
		workerCount: config.WorkerCount,
		bufferSize:  config.BufferSize,
	}
}

// Start starts the background workers
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("query log service already started")
	}

	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.started = true
	s.logger.Info("started query log service",
		zap.Int("worker_count", s.workerCount),
		zap.Int("buffer_size", s.bufferSize))

	return nil
}

// Stop stops accepting entries and waits for pending ones to be written
func (s *Service) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return fmt.Errorf("query log service not running")
	}
	s.stopped = true
	s.logger.Info("stopping query log service", zap.Int("pending_entries", len(s.entries)))
	close(s.entries)
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("query log service stopped gracefully")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("query log service stop timeout after %v", timeout)
	}
}

// ErrBufferFull is returned by Record when an entry is dropped
var ErrBufferFull = errors.New("query log buffer full")

// Record queues an entry without blocking. When the buffer is full the
// entry is dropped and ErrBufferFull returned; logging it is left to the caller.
func (s *Service) Record(entry *models.QueryLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started || s.stopped {
		return fmt.Errorf("query log service not running")
	}

	select {
	case s.entries <- entry:
		return nil
	default:
		s.dropped++
		return ErrBufferFull
	}
}

// ListRecent returns the newest persisted entries
func (s *Service) ListRecent(ctx context.Context, limit int) ([]*models.QueryLog, error) {
	return s.repo.ListRecent(ctx, limit)
}

func (s *Service) worker(id int) {
	defer s.wg.Done()

	s.logger.Debug("query log worker started", zap.Int("worker_id", id))

	for entry := range s.entries {
		if err := s.write(entry); err != nil {
			s.logger.Error("failed to write query log",
				zap.Int("worker_id", id),
				zap.Error(err),
				zap.String("request_id", entry.RequestID))
		}
	}

	s.logger.Debug("query log worker stopped", zap.Int("worker_id", id))
}

func (s *Service) write(entry *models.QueryLog) error {
	ctx, cancel := context.WithTimeout(context.Background(), insertTimeout)
	defer cancel()

	if err := s.repo.Insert(ctx, entry); err != nil {
		return fmt.Errorf("failed to insert query log: %w", err)
	}
	return nil
}

// GetStats returns statistics about the service
func (s *Service) GetStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		BufferSize:     s.bufferSize,
		PendingEntries: len(s.entries),
		WorkerCount:    s.workerCount,
		Dropped:        s.dropped,
		Started:        s.started && !s.stopped,
	}
}

// Stats represents query log service statistics
type Stats struct {
	BufferSize     int
	PendingEntries int
	WorkerCount    int
	Dropped        int64
	Started        bool
}
