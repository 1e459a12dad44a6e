package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"callstack/internal/bootstrap"
	"callstack/internal/domain"
	"callstack/internal/usecase"
	"callstack/internal/version"
)

const (
	eventState = "callstack:state"
	eventError = "callstack:error"
)

type errorCode string

const (
	errorStartup   errorCode = "startup"
	errorSignIn    errorCode = "sign_in"
	errorDashboard errorCode = "dashboard"
)

// App is the Wails application root.
type App struct {
	ctx  context.Context
	emit func(ctx context.Context, name string, data ...interface{})

	services *bootstrap.Services
	bootErr  error
}

func NewApp() *App {
	return &App{emit: runtime.EventsEmit}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	services, err := bootstrap.Build(ctx, bootstrap.Options{Version: version.Version, Desktop: true}, a)
	if err != nil {
		a.bootErr = err
		a.notifyError(errorStartup, err.Error())
		return
	}
	a.services = services
	a.StateChanged(services.Controller.Status())
}

func (a *App) shutdown(ctx context.Context) {
	if a.services == nil {
		return
	}
	if err := a.services.Shutdown(ctx); err != nil {
		a.services.Logger.Warn("shutdown", "error", err)
	}
}

// StartRecording acquires the microphone. A busy controller answers with an error
// and leaves the current view alone.
func (a *App) StartRecording() (usecase.View, error) {
	if err := a.requireReady(); err != nil {
		return usecase.View{}, err
	}
	err := a.services.Controller.Start(a.ctx)
	return usecase.Render(a.services.Controller.Status()), err
}

// StopRecording uploads the recording. Cycle failures are part of the returned view.
func (a *App) StopRecording() (usecase.View, error) {
	if err := a.requireReady(); err != nil {
		return usecase.View{}, err
	}
	state, _ := a.services.Controller.Stop(a.ctx)
	return usecase.Render(state), nil
}

// AbortRecording discards an in-progress recording.
func (a *App) AbortRecording() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	if err := a.services.Controller.Abort(); err != nil && !errors.Is(err, domain.ErrNotRecording) {
		return err
	}
	return nil
}

// GetState returns the current view.
func (a *App) GetState() usecase.View {
	if a.services == nil {
		view := usecase.Render(domain.State{Phase: domain.PhaseIdle})
		if a.bootErr != nil {
			view.Error = a.bootErr.Error()
		}
		return view
	}
	return usecase.Render(a.services.Controller.Status())
}

// SessionInfo is the signed-in user as shown in the UI.
type SessionInfo struct {
	SignedIn  bool   `json:"signedIn"`
	UserID    string `json:"userId,omitempty"`
	Phone     string `json:"phone,omitempty"`
	ExpiresAt string `json:"expiresAt,omitempty"`
}

func sessionInfo(session *domain.Session) SessionInfo {
	if session == nil {
		return SessionInfo{}
	}
	info := SessionInfo{SignedIn: true, UserID: session.UserID, Phone: session.Phone}
	if !session.ExpiresAt.IsZero() {
		info.ExpiresAt = session.ExpiresAt.Format(time.RFC3339)
	}
	return info
}

func (a *App) GetSession() (SessionInfo, error) {
	if err := a.requireReady(); err != nil {
		return SessionInfo{}, err
	}
	session, err := a.services.Identity.CurrentSession(a.ctx)
	if err != nil {
		return SessionInfo{}, err
	}
	return sessionInfo(session), nil
}

func (a *App) SendCode(phone string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	if err := a.services.Identity.SendCode(a.ctx, phone); err != nil {
		a.notifyError(errorSignIn, err.Error())
		return err
	}
	return nil
}

func (a *App) VerifyCode(phone string, code string) (SessionInfo, error) {
	if err := a.requireReady(); err != nil {
		return SessionInfo{}, err
	}
	session, err := a.services.Identity.VerifyCode(a.ctx, phone, code)
	if err != nil {
		a.notifyError(errorSignIn, err.Error())
		return SessionInfo{}, err
	}
	return sessionInfo(session), nil
}

// SignInWithOAuth opens the provider's sign-in page in the system browser.
func (a *App) SignInWithOAuth(provider string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	url, err := a.services.Identity.OAuthURL(provider)
	if err != nil {
		return err
	}
	runtime.BrowserOpenURL(a.ctx, url)
	return nil
}

func (a *App) CompleteOAuth(code string) (SessionInfo, error) {
	if err := a.requireReady(); err != nil {
		return SessionInfo{}, err
	}
	session, err := a.services.Identity.ExchangeOAuthCode(a.ctx, code)
	if err != nil {
		a.notifyError(errorSignIn, err.Error())
		return SessionInfo{}, err
	}
	return sessionInfo(session), nil
}

func (a *App) SignOut() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.services.Identity.SignOut(a.ctx)
}

func (a *App) GetDashboard() (domain.Dashboard, error) {
	session, err := a.requireSession()
	if err != nil {
		return domain.Dashboard{}, err
	}
	dashboard, err := a.services.Backend.Dashboard(a.ctx, session.UserID, session.AccessToken)
	if err != nil {
		a.notifyError(errorDashboard, err.Error())
		return domain.Dashboard{}, err
	}
	return dashboard, nil
}

func (a *App) GetHistory() ([]domain.CallSession, error) {
	session, err := a.requireSession()
	if err != nil {
		return nil, err
	}
	sessions, err := a.services.Backend.History(a.ctx, session.UserID, session.AccessToken)
	if err != nil {
		a.notifyError(errorDashboard, err.Error())
		return nil, err
	}
	return sessions, nil
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}
	if a.services == nil {
		return map[string]string{}
	}

	cfg := a.services.Config
	return map[string]string{
		"version":     version.Version,
		"backend":     cfg.Backend.Origin,
		"container":   cfg.Audio.Container,
		"audioInput":  cfg.Audio.InputFormat + ":" + cfg.Audio.InputDevice,
		"livePreview": strconv.FormatBool(cfg.Preview.Enabled),
		"activity":    cfg.Activity.RetentionMode,
		"logFile":     cfg.Log.File,
	}
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.services == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

func (a *App) requireSession() (*domain.Session, error) {
	if err := a.requireReady(); err != nil {
		return nil, err
	}
	session, err := a.services.Identity.CurrentSession(a.ctx)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, domain.ErrNoSession
	}
	return session, nil
}

// StateChanged emits presentation updates to the frontend.
func (a *App) StateChanged(state domain.State) {
	if a.ctx == nil || a.emit == nil {
		return
	}
	a.emit(a.ctx, eventState, usecase.Render(state))
}

func (a *App) notifyError(code errorCode, detail string) {
	if a.ctx == nil || a.emit == nil {
		return
	}
	a.emit(a.ctx, eventError, map[string]string{
		"code":    string(code),
		"message": errorMessage(code, detail),
		"detail":  detail,
	})
}

func errorMessage(code errorCode, detail string) string {
	switch code {
	case errorStartup:
		return "Startup failed"
	case errorSignIn:
		return "Sign-in failed"
	case errorDashboard:
		return "Could not load your projects"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}
