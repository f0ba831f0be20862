// Package app implements C12: the supervisor that wires every other
// component together, owns the process's timers, and drives the
// single sample pipeline from a bike ingress driver through to the
// BLE GATT server(s) and the ANT+ broadcaster.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"tinygo.org/x/bluetooth"

	"gymnasticon/internal/antplus"
	"gymnasticon/internal/autodetect"
	"gymnasticon/internal/bleserver"
	"gymnasticon/internal/calibrator"
	"gymnasticon/internal/capability"
	"gymnasticon/internal/config"
	"gymnasticon/internal/connect"
	"gymnasticon/internal/gatt"
	"gymnasticon/internal/heartrate"
	"gymnasticon/internal/ingress"
	"gymnasticon/internal/model"
	"gymnasticon/internal/pedal"
	"gymnasticon/internal/smoother"
)

// scanTimeout bounds the autodetect resolving scan for drivers that
// need a peripheral address before Connect (Flywheel, IC4/IC5, IC8).
const scanTimeout = 15 * time.Second

// App owns every long-lived component for one process lifetime,
// mirroring the teacher's Peer as the single owner of the adapter,
// the transport, and the status sink (peer_common.go's Run/
// handleDisconnect shape), generalized to the bike/HR/BLE-server/ANT+
// topology of spec.md §3/§5.
type App struct {
	cfg *config.Config
	log *logrus.Logger

	bikeAdapter *bluetooth.Adapter

	driver ingress.Driver
	hr     *heartrate.Client
	server *bleserver.MultiBleServer
	stick  *antplus.Stick

	cal    *calibrator.Calibrator
	smooth *smoother.Smoother

	pedalClock pedal.Clock
	crankSim   *pedal.Simulator
	wheelSim   *pedal.Simulator

	mu           sync.Mutex
	crank        model.CrankEvent
	wheel        model.WheelEvent
	lastPower    int32
	lastCadence  uint16
	hasWheelData bool

	pingTimer    *time.Timer
	receiveTimer *time.Timer

	shutdownOnce sync.Once
	cancel       context.CancelFunc
}

// New constructs an App from cfg; all components share log as their
// single error sink.
func New(cfg *config.Config, log *logrus.Logger) *App {
	return &App{
		cfg:         cfg,
		log:         log,
		bikeAdapter: bluetooth.DefaultAdapter,
		cal:         calibrator.New(cfg.PowerScale, cfg.PowerOffset),
		smooth:      smoother.New(smoother.DefaultAlpha),
	}
}

// Run executes the full C12 sequence and blocks until a terminal
// condition (stale bike, fatal error, or ctx cancellation from a
// caught signal) is reached, returning the process exit code spec.md
// §6 specifies: 0 for normal/stale-bike, 1 for fatal.
func (a *App) Run(ctx context.Context) int {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	defer cancel()

	if err := a.bikeAdapter.Enable(); err != nil {
		a.log.WithError(err).Error("bluetooth adapter power-on failed")
		return 1
	}

	if err := a.buildRoles().Check(a.multiRoleCapable); err != nil {
		a.log.WithError(err).Error("adapter role configuration invalid")
		return 1
	}

	driver, err := a.createBikeClient(runCtx)
	if err != nil {
		a.log.WithError(err).Error("could not resolve a bike driver")
		return 1
	}
	a.driver = driver

	connectTimeout := durationOrDefault(a.cfg.BikeConnectTimeout, 30*time.Second)
	sup := connect.New(connect.Options{Timeout: connectTimeout, MaxRetries: 3}, driver.Connect, driver.Disconnect)
	if err := sup.Run(runCtx, driver.Disconnected()); err != nil {
		a.log.WithError(err).Error("bike connect failed")
		return 1
	}
	a.log.Info("bike connected")

	if err := a.startServers(); err != nil {
		a.log.WithError(err).Error("no BLE server adapter could start")
		return 1
	}
	defer a.server.Stop()

	if a.cfg.AntPlus {
		a.startAntPlus()
		if a.stick != nil {
			defer a.stick.Close()
		}
	}

	if a.cfg.HeartRateEnabled {
		a.startHeartRate(runCtx)
		if a.hr != nil {
			defer a.hr.Disconnect()
		}
	}

	a.pedalClock = pedal.NewRealClock()
	a.crankSim = pedal.New(a.pedalClock, a.onCrankTick)
	if a.cfg.SpeedCircumference > 0 {
		a.wheelSim = pedal.New(a.pedalClock, a.onWheelTick)
	}

	receiveTimeout := durationOrDefault(a.cfg.BikeReceiveTimeout, 10*time.Second)
	a.receiveTimer = time.NewTimer(receiveTimeout)
	defer a.receiveTimer.Stop()

	pingInterval := durationOrDefault(a.cfg.ServerPingInterval, 1*time.Second)
	a.pingTimer = time.NewTimer(pingInterval)
	defer a.pingTimer.Stop()

	return a.pumpLoop(runCtx, receiveTimeout, pingInterval)
}

// pumpLoop is the sample/HR/ping/stale-bike select loop, split out of
// Run for readability.
func (a *App) pumpLoop(ctx context.Context, receiveTimeout, pingInterval time.Duration) int {
	var hrSamples <-chan model.HrSample
	if a.hr != nil {
		hrSamples = a.hr.Samples()
	}

	for {
		select {
		case <-ctx.Done():
			return 0

		case sample, ok := <-a.driver.Samples():
			if !ok {
				a.log.Error("bike sample channel closed")
				return 1
			}
			resetTimer(a.receiveTimer, receiveTimeout)
			a.handleSample(sample)

		case <-a.driver.Disconnected():
			a.log.Error("bike link lost")
			return 1

		case hs, ok := <-hrSamples:
			if ok {
				a.server.NotifyHeartRate(hs.Bpm)
			}

		case <-a.receiveTimer.C:
			a.log.Warn("bike stats stale, exiting")
			return 0

		case <-a.pingTimer.C:
			a.sendKeepAlive()
			resetTimer(a.pingTimer, pingInterval)
		}
	}
}

// handleSample runs one BikeSample through C5 (calibrate) and C4
// (smooth), then feeds the pedal simulator(s) that drive crank/wheel
// keep-alive events. Dropout masking (C3) already happened inside the
// BLE-sourced driver before the sample reached this channel.
func (a *App) handleSample(s model.BikeSample) {
	calibrated := a.cal.Apply(int32(s.PowerW))
	smoothed := a.smooth.Apply(calibrated)

	a.mu.Lock()
	a.lastPower = int32(smoothed)
	a.lastCadence = s.CadenceRPM
	a.mu.Unlock()

	tMs := a.pedalClock.NowMs()
	a.crankSim.SetCadence(float64(s.CadenceRPM), tMs)

	if a.wheelSim != nil {
		if s.HasSpeed && s.SpeedMps > 0 {
			speed := clampSpeed(s.SpeedMps, a.cfg.SpeedMin, a.cfg.SpeedMax)
			wheelRPM := float64(speed) * 60 / a.cfg.SpeedCircumference * gearFactorOrOne(a.cfg.SpeedGearFactor)
			a.wheelSim.SetCadence(wheelRPM, tMs)
		} else {
			a.wheelSim.SetCadence(0, tMs)
		}
	}
}

// onCrankTick fires on every pedal stroke synthesized by crankSim: advances the crank event counters and pushes a fresh
// CPS/CSC notification, which also cancels the pending keep-alive
// ping per spec.md §4.11 ("cancelled by real pedal strokes").
func (a *App) onCrankTick(tMs float64) {
	a.mu.Lock()
	a.crank.Revolutions++
	a.crank.LastEventTime = uint16(tMs * 1.024)
	power := a.lastPower
	crank := a.crank
	wheel := a.wheel
	hasWheel := a.hasWheelData
	a.mu.Unlock()

	a.server.NotifyPower(int16(power), crank.Revolutions, crank.LastEventTime)
	a.server.NotifyCSC(gatt.CSCInput{
		HasCrank:           true,
		CrankRevolutions:   crank.Revolutions,
		CrankEventTime1024: crank.LastEventTime,
		HasWheel:           hasWheel,
		WheelRevolutions:   wheel.Revolutions,
		WheelEventTime1024: wheel.LastEventTime,
	})
	resetTimer(a.pingTimer, durationOrDefault(a.cfg.ServerPingInterval, 1*time.Second))
}

// onWheelTick advances the wheel event counters; the next crank tick
// (or keep-alive ping) picks up the latest wheel snapshot. The first
// tick also upgrades the CSC Feature characteristic from crank-only to
// wheel+crank (spec.md §4.7).
func (a *App) onWheelTick(tMs float64) {
	a.mu.Lock()
	a.wheel.Revolutions++
	a.wheel.LastEventTime = uint16(tMs * 1.024)
	first := !a.hasWheelData
	a.hasWheelData = true
	a.mu.Unlock()

	if first {
		a.server.EnsureCscCapabilities()
	}
}

// sendKeepAlive pushes the last-known calibrated measurement so
// clients requiring a notification within N seconds do not time the
// session out during a lull with no new crank ticks.
func (a *App) sendKeepAlive() {
	a.mu.Lock()
	power := a.lastPower
	crank := a.crank
	wheel := a.wheel
	hasWheel := a.hasWheelData
	a.mu.Unlock()

	a.server.NotifyPower(int16(power), crank.Revolutions, crank.LastEventTime)
	a.server.NotifyCSC(gatt.CSCInput{
		HasCrank:           true,
		CrankRevolutions:   crank.Revolutions,
		CrankEventTime1024: crank.LastEventTime,
		HasWheel:           hasWheel,
		WheelRevolutions:   wheel.Revolutions,
		WheelEventTime1024: wheel.LastEventTime,
	})
	if a.stick != nil {
		a.stick.SetPower(uint16(clampNonNegative(power)))
	}
}

// createBikeClient resolves the configured bike kind (explicit, or
// autodetect via a resolving scan / Peloton path probe) and returns
// the matching, not-yet-connected driver.
func (a *App) createBikeClient(ctx context.Context) (ingress.Driver, error) {
	kind := autodetect.Kind(strings.ToLower(a.cfg.Bike))

	if kind == "" || kind == "autodetect" {
		if autodetect.PelotonPathExists(a.cfg.PelotonPath) {
			kind = autodetect.KindPeloton
		} else {
			resolvedKind, addr, err := a.scanForBike(ctx)
			if err != nil {
				return nil, err
			}
			kind = resolvedKind
			return a.buildDriver(kind, addr)
		}
	}

	switch kind {
	case autodetect.KindPeloton, autodetect.KindBot:
		return a.buildDriver(kind, "")
	case autodetect.KindKeiser:
		return a.buildDriver(kind, "")
	default:
		// Flywheel/IC4/IC5/IC8 need a resolved address even when the
		// driver kind was forced explicitly via --bike.
		_, addr, err := a.scanForBike(ctx)
		if err != nil {
			return nil, err
		}
		return a.buildDriver(kind, addr)
	}
}

// scanForBike runs a bounded BLE scan, classifying each advertisement
// via autodetect.Match until one resolves, falling back to
// autodetect.DefaultBike with an empty address if the scan window
// closes with nothing found.
func (a *App) scanForBike(ctx context.Context) (autodetect.Kind, string, error) {
	scanCtx, cancel := context.WithTimeout(ctx, scanTimeout)
	defer cancel()

	type result struct {
		kind autodetect.Kind
		addr string
	}
	found := make(chan result, 1)

	go func() {
		err := a.bikeAdapter.Scan(func(adapter *bluetooth.Adapter, sr bluetooth.ScanResult) {
			var mfg []byte
			for _, e := range sr.ManufacturerData() {
				mfg = e.Data
				break
			}
			adv := autodetect.Advertisement{
				LocalName:        sr.LocalName(),
				Address:          sr.Address.String(),
				ManufacturerData: mfg,
				AddressFilter:    a.cfg.FlywheelAddress,
			}
			if kind, ok := autodetect.Match(adv); ok {
				_ = adapter.StopScan()
				select {
				case found <- result{kind: kind, addr: sr.Address.String()}:
				default:
				}
			}
		})
		if err != nil {
			select {
			case found <- result{}:
			default:
			}
		}
	}()

	select {
	case <-scanCtx.Done():
		_ = a.bikeAdapter.StopScan()
		return autodetect.DefaultBike, "", nil
	case r := <-found:
		if r.kind == "" {
			return autodetect.DefaultBike, "", nil
		}
		return r.kind, r.addr, nil
	}
}

// buildDriver constructs the concrete ingress.Driver for kind, binding
// addr (when applicable) via base.SetAddress before Connect is called.
func (a *App) buildDriver(kind autodetect.Kind, addr string) (ingress.Driver, error) {
	logf := a.driverLogger()
	switch kind {
	case autodetect.KindFlywheel:
		d := ingress.NewFlywheelDriver(a.bikeAdapter, logf)
		d.SetAddress(addr)
		return d, nil
	case autodetect.KindIC4, autodetect.KindIC5:
		d := ingress.NewIC4Driver(a.bikeAdapter, logf)
		d.SetAddress(addr)
		return d, nil
	case autodetect.KindIC8:
		d := ingress.NewIC8Driver(a.bikeAdapter, calibrator.New(1.0, 0.0), logf)
		d.SetAddress(addr)
		return d, nil
	case autodetect.KindKeiser:
		return ingress.NewKeiserDriver(a.bikeAdapter, logf), nil
	case autodetect.KindPeloton:
		return ingress.NewPelotonDriver(a.cfg.PelotonPath, logf), nil
	case autodetect.KindBot:
		d := ingress.NewBotDriver(a.cfg.BotHost, a.cfg.BotPort)
		return d, nil
	default:
		return nil, fmt.Errorf("app: unknown bike kind %q", kind)
	}
}

// buildRoles translates the configured adapter names into the
// model.Roles set spec.md §3's AdapterRole invariant is checked
// against: at most one bike role, 1..N server roles, 0..1 heart-rate
// role.
func (a *App) buildRoles() model.Roles {
	var roles model.Roles
	roles = append(roles, model.AdapterRole{Kind: model.RoleBike, Name: a.cfg.BikeAdapter})

	names := splitAdapterList(a.cfg.ServerAdapters)
	if len(names) == 0 {
		names = []string{a.cfg.ServerAdapter}
	}
	for i, name := range names {
		roles = append(roles, model.AdapterRole{Kind: model.RoleServer, Name: name, IsPrimary: i == 0})
		if !a.cfg.BleMultiOutput {
			break
		}
	}

	if a.cfg.HeartRateEnabled {
		roles = append(roles, model.AdapterRole{Kind: model.RoleHeartRate, Name: a.cfg.HeartRateAdapter})
	}
	return roles
}

// multiRoleCapable probes whether adapterName supports concurrent
// central+peripheral roles, falling back to true (best-effort, as in
// startHeartRate) when BlueZ's D-Bus API can't be reached at all: a
// missing prober must never itself block an otherwise-valid topology.
func (a *App) multiRoleCapable(adapterName string) bool {
	name := adapterName
	if name == "" {
		name = "hci0"
	}
	prober, err := capability.NewProber()
	if err != nil {
		return true
	}
	defer prober.Close()
	return prober.IsMultiRoleCapable(name)
}

func (a *App) driverLogger() func(string, ...any) {
	return func(format string, args ...any) {
		a.log.Debugf(format, args...)
	}
}

// startServers brings up one bleserver.Server per configured server
// adapter (or just the default adapter) and wraps them in a
// MultiBleServer, succeeding if at least one starts (spec.md §4.7
// "start_all_allow_partial").
func (a *App) startServers() error {
	names := splitAdapterList(a.cfg.ServerAdapters)
	if len(names) == 0 {
		names = []string{a.cfg.ServerAdapter}
	}

	var servers []*bleserver.Server
	for range names {
		// tinygo's bluetooth package exposes a single local adapter on
		// Linux (bluetooth.DefaultAdapter); distinct named adapters are
		// not independently addressable through it, so every entry
		// shares the same radio handle. See DESIGN.md.
		servers = append(servers, bleserver.New(a.bikeAdapter, a.cfg.ServerName))
		if !a.cfg.BleMultiOutput {
			break
		}
	}

	multi := bleserver.NewMulti(servers...)
	errs := multi.Start()
	if len(errs) == len(servers) && len(servers) > 0 {
		return errors.Join(errs...)
	}
	for _, err := range errs {
		a.log.WithError(err).Warn("server adapter failed to start")
	}
	a.server = multi
	return nil
}

func splitAdapterList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// startAntPlus opens the configured ANT+ stick, best-effort: its
// absence is never fatal to the rest of the pipeline.
func (a *App) startAntPlus() {
	stick, err := antplus.Open(uint16(a.cfg.AntDeviceID))
	if err != nil {
		a.log.WithError(err).Warn("ant+ stick unavailable, continuing without it")
		return
	}
	stick.Start()
	a.stick = stick
}

// startHeartRate launches the best-effort heart-rate client on the bike
// adapter's radio. The multi-role probe only logs a warning when the
// adapter is not multi-role-capable; the client shares the radio either
// way. Connection failures here are logged and otherwise ignored.
func (a *App) startHeartRate(ctx context.Context) {
	adapter := a.bikeAdapter
	if prober, err := capability.NewProber(); err == nil {
		defer prober.Close()
		if !prober.IsMultiRoleCapable("hci0") {
			a.log.Warn("adapter not probed multi-role-capable; heart-rate client shares the bike radio anyway (single local adapter)")
		}
	}

	client := heartrate.New(adapter, "", a.driverLogger())
	a.hr = client
	go func() {
		hrCtx, cancel := context.WithTimeout(ctx, scanTimeout)
		defer cancel()
		if err := client.Connect(hrCtx); err != nil {
			a.log.WithError(err).Warn("heart-rate client did not connect")
		}
	}()
}

// Shutdown cancels the run loop and tears down every owned component
// exactly once, mirroring the teacher's handleDisconnect guard.
func (a *App) Shutdown() {
	a.shutdownOnce.Do(func() {
		if a.cancel != nil {
			a.cancel()
		}
	})
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}

func durationOrDefault(seconds float64, def time.Duration) time.Duration {
	if seconds <= 0 {
		return def
	}
	return time.Duration(seconds * float64(time.Second))
}

func gearFactorOrOne(f float64) float64 {
	if f <= 0 {
		return 1.0
	}
	return f
}

func clampSpeed(v float32, min, max float64) float32 {
	if max > 0 && float64(v) > max {
		return float32(max)
	}
	if min > 0 && float64(v) < min {
		return float32(min)
	}
	return v
}

func clampNonNegative(v int32) int32 {
	if v < 0 {
		return 0
	}
	return v
}
