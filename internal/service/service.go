// Package service runs long-lived background components until their context
// is cancelled.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

type Service interface {
	Run(ctx context.Context) error
}

// Func adapts a function to Service.
type Func func(ctx context.Context) error

func (f Func) Run(ctx context.Context) error {
	return f(ctx)
}

type named struct {
	name string
	s    Service
}

// Manager manages a collection of named services. The first failing service
// cancels the others.
type Manager struct {
	mu       sync.Mutex
	services []named
	group    *errgroup.Group
}

func NewManager() *Manager {
	return &Manager{}
}

// Register adds a service. Services registered after Run are not started.
func (m *Manager) Register(name string, s Service) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.services = append(m.services, named{name: name, s: s})
}

// Run starts all registered services. It returns a context which is done when
// ctx is done or any service failed.
func (m *Manager) Run(ctx context.Context) context.Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	group, groupCtx := errgroup.WithContext(ctx)
	for _, n := range m.services {
		group.Go(func() error {
			log.Debug().Str("service", n.name).Msg("starting service")
			err := n.s.Run(groupCtx)
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("%s: %w", n.name, err)
			}
			return nil
		})
	}
	m.group = group
	return groupCtx
}

// Wait blocks until all services returned.
func (m *Manager) Wait() error {
	m.mu.Lock()
	group := m.group
	m.mu.Unlock()
	if group == nil {
		return nil
	}
	return group.Wait()
}

// HTTPServer runs srv until ctx is done, then shuts it down gracefully.
func HTTPServer(srv *http.Server, shutdownTimeout time.Duration) Service {
	return Func(func(ctx context.Context) error {
		errCh := make(chan error, 1)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()
		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}
