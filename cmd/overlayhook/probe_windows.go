//go:build windows

package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"runtime"

	"go.uber.org/zap"

	"overlayhook/internal/config"
	"overlayhook/internal/logging"
	"overlayhook/internal/overlay"
	"overlayhook/internal/tray"
	"overlayhook/internal/winapi"
)

func runProbe(mgr *config.Manager, showTray bool) error {
	// The probe window and its message loop live on this thread.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	logger := logging.L("probe")

	backend, err := overlay.DefaultBackend()
	if err != nil {
		return err
	}
	app, err := overlay.New(mgr.Get(), backend)
	if err != nil {
		return err
	}
	defer app.Close()

	mgr.RegisterChangeCallback(func(cfg *config.Config) {
		if err := app.ApplyConfig(cfg); err != nil {
			logger.Warn("config reload rejected", zap.Error(err))
			return
		}
		logger.Info("config reloaded")
	})
	mgr.Watch()

	hwnd, err := winapi.CreateProbeWindow("overlayhook probe", 1024, 768)
	if err != nil {
		return err
	}

	if !app.InstallHooks() {
		logger.Warn("running with some input hooks inert")
	}
	app.SetOverlayEnabled(true)
	app.SetGraphicsActive(true)
	app.SetWindowed(true)
	if !app.TrySetupGraphicsWindow(hwnd) {
		winapi.CloseWindow(hwnd)
		return errors.New("probe: could not attach to the probe window")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	go func() {
		<-ctx.Done()
		winapi.CloseWindow(hwnd)
	}()
	go func() {
		if err := app.Run(ctx); err != nil {
			logger.Error("connector stopped", zap.Error(err))
		}
	}()

	if showTray {
		t := tray.New("overlayhook", "overlayhook probe")
		var toggle int
		toggle = t.AddCheckbox("Intercept input", "Route input to the overlay", false, func() {
			err := app.Schedule(func() {
				app.ToggleInterception()
				t.SetChecked(toggle, app.Intercepting())
			})
			if err != nil {
				logger.Warn("toggle dropped", zap.Error(err))
			}
		})
		t.AddSeparator()
		t.AddItem("Quit", "Close the probe window", func() { winapi.CloseWindow(hwnd) })
		go t.Run()
		defer t.Stop()
	}

	logger.Info("probe running", zap.Uintptr(logging.KeyWindow, hwnd), zap.String("session", app.Connector().SessionID()))
	winapi.RunMessageLoop()
	return nil
}
