package source

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/markheger/streamsx.metrics/appconfig"
	"github.com/markheger/streamsx.metrics/emitter"
	"github.com/markheger/streamsx.metrics/errors"
	"github.com/markheger/streamsx.metrics/filter"
	"github.com/markheger/streamsx.metrics/jmx"
	"github.com/markheger/streamsx.metrics/metric"
)

// Reconciliation outcomes, as counted by the reconciliations metric.
const (
	reconcileUnchanged = "unchanged"
	reconcileRebuilt   = "rebuilt"
	reconcileError     = "error"
)

// loopTickers are created before the loop goroutine starts, so a tick is
// never lost to a ticker that does not exist yet.
type loopTickers struct {
	reconcile *clock.Ticker
	poll      *clock.Ticker
}

func (s *Source) newTickers() loopTickers {
	t := loopTickers{reconcile: s.clock.Ticker(s.config.ReconcileInterval)}
	if s.spec.polls {
		t.poll = s.clock.Ticker(s.config.PollInterval)
	}
	return t
}

func (s *Source) run(ctx context.Context, tickers loopTickers) {
	defer s.wg.Done()
	defer tickers.reconcile.Stop()

	var pollC <-chan time.Time
	if tickers.poll != nil {
		defer tickers.poll.Stop()
		pollC = tickers.poll.C
	}
	reconcileC := tickers.reconcile.C

	changes := s.watchAppConfig(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-reconcileC:
			_ = s.Reconcile(ctx)
		case <-pollC:
			_ = s.Poll(ctx)
		case name, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			if name == s.config.ApplicationConfigurationName {
				_ = s.Reconcile(ctx)
			}
		case sig := <-s.broken:
			if !s.isTreeConnection(sig.connID) {
				s.logger.Debug("Ignoring break of a replaced session", "connection_id", sig.connID, "reason", sig.reason)
				continue
			}
			s.handleBroken(ctx, sig.reason)
		}
	}
}

// watchAppConfig subscribes to application configuration changes when the
// store supports it, so drift is seen before the next tick.
func (s *Source) watchAppConfig(ctx context.Context) <-chan string {
	if s.config.ApplicationConfigurationName == "" || s.deps.Host.Standalone {
		return nil
	}
	w, ok := s.deps.AppConfig.(appconfig.Watcher)
	if !ok {
		return nil
	}
	ch, err := w.Watch(ctx)
	if err != nil {
		s.logger.Warn("Application configuration changes are not watched, relying on the reconcile interval", "error", err)
		return nil
	}
	return ch
}

// Reconcile compares the filter document in the application configuration
// with the active one. On a change it compiles the new document, closes the
// handler tree, and rescans the instance with the new filter. A document
// that does not compile leaves the running tree untouched.
func (s *Source) Reconcile(ctx context.Context) error {
	doc, changed, err := s.resolver.Drifted(ctx)
	if err != nil {
		s.reconciled(reconcileError)
		s.logger.Warn("Filter drift check failed", "error", err)
		return err
	}
	if !changed {
		s.reconciled(reconcileUnchanged)
		return nil
	}

	s.logger.Info("Filter document changed in the application configuration",
		"application_configuration", s.config.ApplicationConfigurationName)
	f, err := filter.ParseConfigValue(doc)
	if err == nil {
		f, err = s.narrow(f)
	}
	if err != nil {
		s.reconciled(reconcileError)
		s.recordError(err)
		s.logger.Error("Changed filter document rejected, keeping the active filter", "error", err)
		return err
	}
	s.resolver.Accept(doc)

	s.mu.Lock()
	s.filter = f
	s.mu.Unlock()

	conn := s.manager.Connection()
	if conn == nil {
		// The next connect builds the tree with the new filter.
		s.reconciled(reconcileRebuilt)
		return nil
	}
	s.closeTree()
	if err := s.buildTree(ctx, conn); err != nil {
		s.reconciled(reconcileError)
		s.recordError(err)
		s.logger.Error("Rescan with the changed filter failed", "error", err)
		return err
	}
	s.reconciled(reconcileRebuilt)
	return nil
}

func (s *Source) reconciled(result string) {
	if s.core != nil {
		s.core.Reconciliations.WithLabelValues(s.name, result).Inc()
	}
}

// Poll reads and emits metrics once. It does nothing while no tree exists.
func (s *Source) Poll(ctx context.Context) error {
	tree := s.currentTree()
	if tree == nil {
		return nil
	}
	return tree.Poll(ctx)
}

// brokenSignal reports the break of one session.
type brokenSignal struct {
	connID string
	reason string
}

// onBroken runs on the transport goroutine that saw the break, possibly
// inside a handler callback, so it only hands the event to the loop. A
// pending signal is replaced by the newer one.
func (s *Source) onBroken(connID, reason string) {
	sig := brokenSignal{connID: connID, reason: reason}
	for {
		select {
		case s.broken <- sig:
			return
		default:
		}
		select {
		case <-s.broken:
		default:
		}
	}
}

// drainBroken drops a pending break signal.
func (s *Source) drainBroken() {
	select {
	case <-s.broken:
	default:
	}
}

// isTreeConnection reports whether connID is the session the current tree
// was built on.
func (s *Source) isTreeConnection(connID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.treeConnID == connID
}

// handleBroken tears the tree down and, when configured, reconnects and
// rescans.
func (s *Source) handleBroken(ctx context.Context, reason string) {
	s.recordError(fmt.Errorf("%w: %s", errors.ErrConnectionLost, reason))
	s.closeTree()
	s.logger.Error("Connection to the management endpoint broken", "reason", reason)

	if !s.config.Reconnect {
		s.setSourceState(metric.StateFailed)
		return
	}
	conn, err := s.manager.Reconnect(ctx)
	if err != nil {
		if !stderrors.Is(err, context.Canceled) {
			s.recordError(err)
			s.setSourceState(metric.StateFailed)
			s.logger.Error("Reconnect failed, source stays disconnected", "error", err)
		}
		return
	}
	if err := s.buildTree(ctx, conn); err != nil {
		s.recordError(err)
		s.logger.Error("Rescan after reconnect failed", "error", err)
		return
	}
	s.clearError()
	s.setSourceState(metric.StateRunning)
	s.logger.Info("Reconnected to management endpoint", "url", s.manager.URL())
}

// onConnectionNotification forwards jmx.remote.connection.* events to
// port 1.
func (s *Source) onConnectionNotification(n jmx.Notification) {
	if !s.notices.Wired() {
		return
	}
	err := s.notices.Emit(context.Background(), emitter.ConnectionNotification{
		Type:     n.Type,
		Source:   string(n.Source),
		Sequence: n.Sequence,
		Message:  n.Message,
	})
	if err != nil {
		s.logger.Debug("Connection notification dropped", "type", n.Type, "error", err)
	}
}
