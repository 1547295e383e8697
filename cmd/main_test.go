package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/vitalstream/internal/adapters/http/api"
	app "github.com/okian/vitalstream/internal/app"
	"github.com/okian/vitalstream/internal/config"
	"github.com/okian/vitalstream/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

const testRoster = `patients:
  - patient_id: P001
    name: Jane Doe
    is_active: true
`

func localConfig(t *testing.T) *config.Config {
	path := filepath.Join(t.TempDir(), "roster.yaml")
	if err := os.WriteFile(path, []byte(testRoster), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg := config.New()
	cfg.Addr = "127.0.0.1:0"
	cfg.RunStateBackend = config.RunStateMemory
	cfg.StreamBackend = config.StreamLog
	cfg.RosterBackend = config.RosterStatic
	cfg.StaticRosterFile = path
	cfg.SubjectDelayMS = 1
	cfg.CycleDelayMS = 1
	return cfg
}

func TestMainFunction(t *testing.T) {
	convey.Convey("Given the main application", t, func() {
		convey.Convey("When testing configuration loading", func() {
			t.Setenv("VITALSTREAM_ADDR", ":8080")
			t.Setenv("VITALSTREAM_STREAM_BACKEND", "log")
			t.Setenv("VITALSTREAM_SUBJECT_DELAY_MS", "250")

			convey.Convey("Then configuration should be loadable", func() {
				cfg, err := config.Load(context.Background())
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.StreamBackend, convey.ShouldEqual, config.StreamLog)
				convey.So(cfg.SubjectDelayMS, convey.ShouldEqual, 250)
			})
		})

		convey.Convey("When the process context ends", func() {
			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan error, 1)
			go func() { done <- run(ctx, localConfig(t)) }()
			time.Sleep(50 * time.Millisecond)
			cancel()

			convey.Convey("Then run should shut down cleanly", func() {
				select {
				case err := <-done:
					convey.So(err, convey.ShouldBeNil)
				case <-time.After(5 * time.Second):
					convey.So("run did not return", convey.ShouldBeEmpty)
				}
			})
		})

		convey.Convey("When the listen address is unusable", func() {
			cfg := localConfig(t)
			cfg.Addr = "256.0.0.1:http-nope"

			convey.Convey("Then run should report a serve error", func() {
				err := run(context.Background(), cfg)
				convey.So(errors.Is(err, api.ErrServe), convey.ShouldBeTrue)
			})
		})
	})
}

func TestMux(t *testing.T) {
	convey.Convey("Given the process mux over a started service", t, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		svc := app.New(app.WithConfig(localConfig(t)))
		convey.So(svc.Start(ctx), convey.ShouldBeNil)
		defer svc.Stop(ctx)

		srv := httptest.NewServer(newMux(ctx, svc))
		defer srv.Close()

		convey.Convey("When a simulation is started and stopped over HTTP", func() {
			resp, err := http.Post(srv.URL+"/simulation/start", "application/json", http.NoBody)
			convey.So(err, convey.ShouldBeNil)
			resp.Body.Close()
			convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusAccepted)

			resp, err = http.Post(srv.URL+"/simulation/stop", "application/json", http.NoBody)
			convey.So(err, convey.ShouldBeNil)
			resp.Body.Close()
			convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusAccepted)
			svc.Wait()

			convey.Convey("Then the status should report the run as stopped", func() {
				st, err := svc.SimulationStatus(ctx)
				convey.So(err, convey.ShouldBeNil)
				convey.So(st.Running, convey.ShouldBeFalse)
				convey.So(st.Loop.RunID, convey.ShouldNotBeEmpty)
			})
		})

		convey.Convey("When the docs are requested", func() {
			resp, err := http.Get(srv.URL + "/openapi.yaml")
			convey.So(err, convey.ShouldBeNil)
			resp.Body.Close()

			convey.Convey("Then they should be served", func() {
				convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusOK)
			})
		})
	})
}

func TestSystemMetrics(t *testing.T) {
	convey.Convey("Given the system metrics updater", t, func() {
		convey.Convey("Then a single update should not panic", func() {
			convey.So(updateSystemMetrics, convey.ShouldNotPanic)
		})

		convey.Convey("And the ticker loop should return when its context ends", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			convey.So(func() { startSystemMetricsUpdater(ctx) }, convey.ShouldNotPanic)
		})
	})
}
