package router

import (
	"context"
	"encoding/json"

	"github.com/woozymasta/launcherd/internal/apperr"
	"github.com/woozymasta/launcherd/internal/models"
)

// Command names.
const (
	CmdGetServerInfo    = "get_server_info"
	CmdDownloadClient   = "download_client"
	CmdInstallClient    = "install_client"
	CmdLaunchGame       = "launch_game"
	CmdUninstallClient  = "uninstall_client"
	CmdSaveSettings     = "save_settings"
	CmdLoadSettings     = "load_settings"
	CmdCheckJava        = "check_java_installation"
	CmdGetSystemInfo    = "get_system_info"
	CmdCancelDownload   = "cancel_download"
	CmdGetInstallState  = "get_install_state"
	CmdGetServerHistory = "get_server_history"
	CmdGetBuildInfo     = "get_build_info"
)

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 1000
)

func (r *Router) register() {
	r.Handle(CmdGetServerInfo, r.getServerInfo)
	r.Handle(CmdDownloadClient, r.downloadClient)
	r.Handle(CmdInstallClient, r.installClient)
	r.Handle(CmdLaunchGame, r.launchGame)
	r.Handle(CmdUninstallClient, r.uninstallClient)
	r.Handle(CmdSaveSettings, r.saveSettings)
	r.Handle(CmdLoadSettings, r.loadSettings)
	r.Handle(CmdCheckJava, r.checkJava)
	r.Handle(CmdGetSystemInfo, r.getSystemInfo)
	r.Handle(CmdCancelDownload, r.cancelDownload)
	r.Handle(CmdGetInstallState, r.getInstallState)
	r.Handle(CmdGetServerHistory, r.getServerHistory)
	r.Handle(CmdGetBuildInfo, r.getBuildInfo)
}

func (r *Router) getServerInfo(ctx context.Context, _ json.RawMessage) (any, error) {
	return r.state.Status.Refresh(ctx)
}

// downloadClient blocks until the download ends. Progress goes out on the event bus;
// a client that drops the request cancels the download.
func (r *Router) downloadClient(ctx context.Context, _ json.RawMessage) (any, error) {
	return nil, r.state.Workflow.Download(ctx)
}

func (r *Router) installClient(ctx context.Context, _ json.RawMessage) (any, error) {
	return nil, r.state.Workflow.Install(ctx)
}

// launchGame starts the game with the given settings, or the stored ones when the payload is empty.
func (r *Router) launchGame(ctx context.Context, payload json.RawMessage) (any, error) {
	s, ok, err := decodeSettings(payload)
	if err != nil {
		return nil, err
	}
	if !ok {
		s = r.state.Settings.Load()
	}

	return nil, r.state.Workflow.Launch(ctx, s)
}

func (r *Router) uninstallClient(ctx context.Context, _ json.RawMessage) (any, error) {
	return nil, r.state.Workflow.Uninstall(ctx)
}

func (r *Router) saveSettings(_ context.Context, payload json.RawMessage) (any, error) {
	s, ok, err := decodeSettings(payload)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.New(apperr.KindInvalidPayload, "settings payload is required")
	}

	return nil, r.state.Settings.Save(s)
}

func (r *Router) loadSettings(context.Context, json.RawMessage) (any, error) {
	return r.state.Settings.Load(), nil
}

// checkJava runs the runtime version check. An optional runtime_path overrides the configured executable.
func (r *Router) checkJava(ctx context.Context, payload json.RawMessage) (any, error) {
	var req struct {
		RuntimePath string `json:"runtime_path"`
	}
	if err := decode(payload, &req); err != nil {
		return nil, err
	}

	if req.RuntimePath != "" {
		return r.state.Environment.DetectRuntimeAt(ctx, req.RuntimePath)
	}
	return r.state.Environment.DetectRuntime(ctx)
}

func (r *Router) getSystemInfo(context.Context, json.RawMessage) (any, error) {
	return r.state.Environment.SystemSummary(), nil
}

func (r *Router) cancelDownload(context.Context, json.RawMessage) (any, error) {
	return map[string]bool{"cancelled": r.state.Workflow.Cancel()}, nil
}

func (r *Router) getInstallState(ctx context.Context, _ json.RawMessage) (any, error) {
	return r.state.Workflow.Snapshot(ctx), nil
}

func (r *Router) getServerHistory(ctx context.Context, payload json.RawMessage) (any, error) {
	req := struct {
		Limit int `json:"limit"`
	}{Limit: defaultHistoryLimit}
	if err := decode(payload, &req); err != nil {
		return nil, err
	}
	if req.Limit <= 0 || req.Limit > maxHistoryLimit {
		return nil, apperr.Newf(apperr.KindInvalidPayload, "limit must be between 1 and %d", maxHistoryLimit)
	}

	if r.state.History == nil {
		return []models.ServerStatus{}, nil
	}

	history, err := r.state.History.StatusHistory(ctx, req.Limit)
	if err != nil {
		return nil, err
	}
	if history == nil {
		history = []models.ServerStatus{}
	}

	return history, nil
}

func (r *Router) getBuildInfo(context.Context, json.RawMessage) (any, error) {
	return r.state.Build, nil
}

// decodeSettings accepts either a bare settings object or one wrapped as {"settings": {...}}.
// ok is false for an empty payload.
func decodeSettings(payload json.RawMessage) (models.GameSettings, bool, error) {
	var s models.GameSettings
	if len(payload) == 0 || string(payload) == "null" {
		return s, false, nil
	}

	var wrapped struct {
		Settings *models.GameSettings `json:"settings"`
	}
	if err := decode(payload, &wrapped); err != nil {
		return s, false, err
	}
	if wrapped.Settings != nil {
		return *wrapped.Settings, true, nil
	}

	if err := decode(payload, &s); err != nil {
		return s, false, err
	}

	return s, true, nil
}
