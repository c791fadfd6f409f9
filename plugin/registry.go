package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"
)

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery for O(1) dispatch performance.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger

	// Type-cached plugin lists for efficient dispatch
	onInit                 []OnInit
	onShutdown             []OnShutdown
	onPlanLevelCreated     []OnPlanLevelCreated
	onPlanLevelRetired     []OnPlanLevelRetired
	onEnrollmentQueued     []OnEnrollmentQueued
	onPositionPlaced       []OnPositionPlaced
	onEventFailed          []OnEventFailed
	onBonusApplied         []OnBonusApplied
	onCycleCompleted       []OnCycleCompleted
	onRunCompleted         []OnRunCompleted
	onWithdrawalDispatched []OnWithdrawalDispatched
	dispatchers            []WithdrawalDispatcherPlugin
	notificationSinks      []NotificationSink
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger: slog.Default(),
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Check for duplicate
	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	// Type-switch to cache interfaces
	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnPlanLevelCreated); ok {
		r.onPlanLevelCreated = append(r.onPlanLevelCreated, v)
	}
	if v, ok := p.(OnPlanLevelRetired); ok {
		r.onPlanLevelRetired = append(r.onPlanLevelRetired, v)
	}
	if v, ok := p.(OnEnrollmentQueued); ok {
		r.onEnrollmentQueued = append(r.onEnrollmentQueued, v)
	}
	if v, ok := p.(OnPositionPlaced); ok {
		r.onPositionPlaced = append(r.onPositionPlaced, v)
	}
	if v, ok := p.(OnEventFailed); ok {
		r.onEventFailed = append(r.onEventFailed, v)
	}
	if v, ok := p.(OnBonusApplied); ok {
		r.onBonusApplied = append(r.onBonusApplied, v)
	}
	if v, ok := p.(OnCycleCompleted); ok {
		r.onCycleCompleted = append(r.onCycleCompleted, v)
	}
	if v, ok := p.(OnRunCompleted); ok {
		r.onRunCompleted = append(r.onRunCompleted, v)
	}
	if v, ok := p.(OnWithdrawalDispatched); ok {
		r.onWithdrawalDispatched = append(r.onWithdrawalDispatched, v)
	}
	if v, ok := p.(WithdrawalDispatcherPlugin); ok {
		r.dispatchers = append(r.dispatchers, v)
	}
	if v, ok := p.(NotificationSink); ok {
		r.notificationSinks = append(r.notificationSinks, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", r.getImplementedInterfaces(p),
	)

	return nil
}

// getImplementedInterfaces returns a list of interfaces implemented by the plugin.
func (r *Registry) getImplementedInterfaces(p Plugin) []string {
	var interfaces []string
	v := reflect.TypeOf(p)

	checkInterface := func(iface reflect.Type, name string) {
		if v.Implements(iface) {
			interfaces = append(interfaces, name)
		}
	}

	checkInterface(reflect.TypeOf((*OnInit)(nil)).Elem(), "OnInit")
	checkInterface(reflect.TypeOf((*OnShutdown)(nil)).Elem(), "OnShutdown")
	checkInterface(reflect.TypeOf((*OnPlanLevelCreated)(nil)).Elem(), "OnPlanLevelCreated")
	checkInterface(reflect.TypeOf((*OnEnrollmentQueued)(nil)).Elem(), "OnEnrollmentQueued")
	checkInterface(reflect.TypeOf((*OnPositionPlaced)(nil)).Elem(), "OnPositionPlaced")
	checkInterface(reflect.TypeOf((*OnBonusApplied)(nil)).Elem(), "OnBonusApplied")
	checkInterface(reflect.TypeOf((*OnCycleCompleted)(nil)).Elem(), "OnCycleCompleted")
	checkInterface(reflect.TypeOf((*OnRunCompleted)(nil)).Elem(), "OnRunCompleted")
	checkInterface(reflect.TypeOf((*WithdrawalDispatcherPlugin)(nil)).Elem(), "WithdrawalDispatcher")
	checkInterface(reflect.TypeOf((*NotificationSink)(nil)).Elem(), "NotificationSink")

	return interfaces
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// Dispatchers returns all registered withdrawal dispatcher plugins.
func (r *Registry) Dispatchers() []WithdrawalDispatcherPlugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]WithdrawalDispatcherPlugin, len(r.dispatchers))
	copy(result, r.dispatchers)
	return result
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine interface{}) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnInit(ctx, engine)
		}); err != nil {
			r.logger.Warn("plugin OnInit failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnShutdown(ctx)
		}); err != nil {
			r.logger.Warn("plugin OnShutdown failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitPlanLevelCreated emits a plan level created event.
func (r *Registry) EmitPlanLevelCreated(ctx context.Context, planLevel interface{}) {
	r.mu.RLock()
	plugins := r.onPlanLevelCreated
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnPlanLevelCreated(ctx, planLevel)
		}); err != nil {
			r.logger.Warn("plugin OnPlanLevelCreated failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitPlanLevelRetired emits a plan level retired event.
func (r *Registry) EmitPlanLevelRetired(ctx context.Context, planID string) {
	r.mu.RLock()
	plugins := r.onPlanLevelRetired
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnPlanLevelRetired(ctx, planID)
		}); err != nil {
			r.logger.Warn("plugin OnPlanLevelRetired failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitEnrollmentQueued emits an enrollment queued event.
func (r *Registry) EmitEnrollmentQueued(ctx context.Context, event interface{}) {
	r.mu.RLock()
	plugins := r.onEnrollmentQueued
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnEnrollmentQueued(ctx, event)
		}); err != nil {
			r.logger.Warn("plugin OnEnrollmentQueued failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitPositionPlaced emits a position placed event.
func (r *Registry) EmitPositionPlaced(ctx context.Context, pos, parent interface{}) {
	r.mu.RLock()
	plugins := r.onPositionPlaced
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnPositionPlaced(ctx, pos, parent)
		}); err != nil {
			r.logger.Warn("plugin OnPositionPlaced failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitEventFailed emits an event processing failure.
func (r *Registry) EmitEventFailed(ctx context.Context, event interface{}, fatal bool, cause error) {
	r.mu.RLock()
	plugins := r.onEventFailed
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnEventFailed(ctx, event, fatal, cause)
		}); err != nil {
			r.logger.Warn("plugin OnEventFailed failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitBonusApplied emits a bonus applied event.
func (r *Registry) EmitBonusApplied(ctx context.Context, txn interface{}) {
	r.mu.RLock()
	plugins := r.onBonusApplied
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnBonusApplied(ctx, txn)
		}); err != nil {
			r.logger.Warn("plugin OnBonusApplied failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitCycleCompleted emits a cycle completed event.
func (r *Registry) EmitCycleCompleted(ctx context.Context, pos interface{}) {
	r.mu.RLock()
	plugins := r.onCycleCompleted
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnCycleCompleted(ctx, pos)
		}); err != nil {
			r.logger.Warn("plugin OnCycleCompleted failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitRunCompleted emits a run completed event.
func (r *Registry) EmitRunCompleted(ctx context.Context, processed, failed int, elapsed time.Duration) {
	r.mu.RLock()
	plugins := r.onRunCompleted
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnRunCompleted(ctx, processed, failed, elapsed)
		}); err != nil {
			r.logger.Warn("plugin OnRunCompleted failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitWithdrawalDispatched emits a withdrawal dispatched event.
func (r *Registry) EmitWithdrawalDispatched(ctx context.Context, req interface{}, cause error) {
	r.mu.RLock()
	plugins := r.onWithdrawalDispatched
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnWithdrawalDispatched(ctx, req, cause)
		}); err != nil {
			r.logger.Warn("plugin OnWithdrawalDispatched failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitNotify fans a notification out to all registered sinks.
func (r *Registry) EmitNotify(ctx context.Context, userID, kind, message string) {
	r.mu.RLock()
	sinks := r.notificationSinks
	r.mu.RUnlock()

	for _, s := range sinks {
		if err := r.callWithTimeout(ctx, s.Name(), func() error {
			return s.Notify(ctx, userID, kind, message)
		}); err != nil {
			r.logger.Warn("notification sink failed",
				"plugin", s.Name(),
				"error", err,
			)
		}
	}
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins must never block the placement pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
