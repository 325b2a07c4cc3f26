// Package workerhost hosts every declared component's Worker Wrapper
// (spec.md §4.5) inside one process: FromInvocation components behind
// an HTTP mux using the invoke primitive, FromMessage components as
// long-running receive loops, since spec.md §4.5.2 has the wrapper
// perform its own receiveOne rather than being handed a message by an
// external trigger.
package workerhost

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/fluxplane/control-plane/internal/domain"
	"github.com/fluxplane/control-plane/internal/handlerreg"
	"github.com/fluxplane/control-plane/internal/invokeclient"
	"github.com/fluxplane/control-plane/internal/wrapper"
)

// Host wires a Wrapper and a handler registry to the set of components
// this process is responsible for.
type Host struct {
	Wrapper  *wrapper.Wrapper
	Handlers *handlerreg.Registry
}

// New constructs a Host.
func New(w *wrapper.Wrapper, handlers *handlerreg.Registry) *Host {
	return &Host{Wrapper: w, Handlers: handlers}
}

// Mux builds an HTTP mux with one route per FromInvocation component in
// app, each reachable at /invoke/<name>. FromMessage components are not
// reachable over HTTP; call RunPollLoops to host them.
func (h *Host) Mux(app domain.Application) (*http.ServeMux, error) {
	mux := http.NewServeMux()
	for name, component := range app.Components {
		if component.Kind != domain.KindFromInvocation {
			continue
		}
		handler, ok := h.Handlers.Lookup(component.Worker.Handler)
		if !ok {
			return nil, unknownHandlerError(name, component.Worker.Handler)
		}
		mux.Handle("/invoke/"+name, h.invocationRoute(component, handler))
	}
	return mux, nil
}

func (h *Host) invocationRoute(component domain.Component, handler wrapper.Handler) http.Handler {
	return invokeclient.Handler("wrapper."+component.Name, func(event json.RawMessage) {
		deadline := time.Now().Add(component.Worker.Timeout)
		h.Wrapper.Wrap(context.Background(), component, event, wrapper.DeadlineContext{Deadline: deadline}, handler)
	})
}

// RunPollLoops starts one goroutine per FromMessage component in app,
// each repeatedly calling Wrap until ctx is cancelled. A Wrap call that
// synthesizes domain.ErrNoInputMessage (the input queue's long-poll
// elapsed with nothing to claim) just loops again immediately — that
// outcome is not logged as a failure here since it is the ordinary
// idle state of a poller, not a wrapper malfunction.
func (h *Host) RunPollLoops(ctx context.Context, app domain.Application) error {
	for name, component := range app.Components {
		if component.Kind != domain.KindFromMessage {
			continue
		}
		handler, ok := h.Handlers.Lookup(component.Worker.Handler)
		if !ok {
			return unknownHandlerError(name, component.Worker.Handler)
		}
		go h.pollLoop(ctx, component, handler)
	}
	return nil
}

func (h *Host) pollLoop(ctx context.Context, component domain.Component, handler wrapper.Handler) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		deadline := time.Now().Add(component.Worker.Timeout)
		h.Wrapper.Wrap(ctx, component, nil, wrapper.DeadlineContext{Deadline: deadline}, handler)
	}
}

func unknownHandlerError(component, handlerRef string) error {
	return &UnknownHandlerError{Component: component, Handler: handlerRef}
}

// UnknownHandlerError reports a component whose Worker.Handler
// reference has no matching registration in this process's
// handlerreg.Registry.
type UnknownHandlerError struct {
	Component string
	Handler   string
}

func (e *UnknownHandlerError) Error() string {
	return "workerhost: component " + e.Component + " references unregistered handler " + e.Handler
}
