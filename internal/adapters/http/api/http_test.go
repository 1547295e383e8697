package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/okian/vitalstream/internal/adapters/http/api"
	"github.com/okian/vitalstream/internal/simulation"
	"github.com/okian/vitalstream/pkg/metrics"
	. "github.com/smartystreets/goconvey/convey"
)

// mockController implements api.Dependencies.
type mockController struct {
	startErr  error
	stopErr   error
	statusErr error
	status    simulation.Status

	starts int
	stops  int
}

func (m *mockController) StartSimulation(ctx context.Context) error {
	m.starts++
	if m.startErr == nil {
		m.status.Running = true
		m.status.Local = true
	}
	return m.startErr
}

func (m *mockController) StopSimulation(ctx context.Context) error {
	m.stops++
	if m.stopErr == nil {
		m.status.Running = false
	}
	return m.stopErr
}

func (m *mockController) SimulationStatus(ctx context.Context) (simulation.Status, error) {
	return m.status, m.statusErr
}

type mockStats map[string]interface{}

func (m mockStats) GetStats() map[string]interface{} { return m }

func newMux(ctrl *mockController) *http.ServeMux {
	mux := http.NewServeMux()
	api.NewServer(ctrl, mockStats{"started": true, "subjects": 3}).Register(context.Background(), mux)
	return mux
}

func do(mux *http.ServeMux, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, http.NoBody)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func decode(w *httptest.ResponseRecorder) map[string]interface{} {
	var body map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return body
}

func TestSimulationStart(t *testing.T) {
	Convey("Given a control API", t, func() {
		ctrl := &mockController{status: simulation.Status{Enabled: true, Loop: simulation.Stats{RunID: "run-1"}}}
		mux := newMux(ctrl)

		Convey("When a start is posted", func() {
			w := do(mux, http.MethodPost, "/simulation/start")

			Convey("Then it should be accepted with the run id", func() {
				So(w.Code, ShouldEqual, http.StatusAccepted)
				So(w.Header().Get("Content-Type"), ShouldEqual, "application/json; charset=utf-8")
				body := decode(w)
				So(body["status"], ShouldEqual, "started")
				So(body["run_id"], ShouldEqual, "run-1")
				So(ctrl.starts, ShouldEqual, 1)
			})
		})

		Convey("When a start is requested with GET", func() {
			w := do(mux, http.MethodGet, "/simulation/start")

			Convey("Then it should be rejected without touching the controller", func() {
				So(w.Code, ShouldEqual, http.StatusMethodNotAllowed)
				So(w.Header().Get("Allow"), ShouldEqual, http.MethodPost)
				So(decode(w)["code"], ShouldEqual, "method_not_allowed")
				So(ctrl.starts, ShouldEqual, 0)
			})
		})

		Convey("When the controller refuses the start", func() {
			cases := []struct {
				err    error
				status int
				code   string
			}{
				{simulation.ErrSimulationDisabled, http.StatusForbidden, "simulation_disabled"},
				{simulation.ErrAlreadyRunning, http.StatusConflict, "already_running"},
				{simulation.ErrEmptyRoster, http.StatusUnprocessableEntity, "empty_roster"},
				{fmt.Errorf("%w: %w", simulation.ErrStoreUnavailable, errors.New("server selection timeout")), http.StatusServiceUnavailable, "unavailable"},
				{fmt.Errorf("%w: cursor", simulation.ErrRosterLoad), http.StatusServiceUnavailable, "unavailable"},
				{fmt.Errorf("%w: readonly", simulation.ErrRunState), http.StatusServiceUnavailable, "unavailable"},
				{errors.New("boom"), http.StatusInternalServerError, "internal_error"},
			}

			Convey("Then each failure should map to its status code", func() {
				for _, tc := range cases {
					ctrl.startErr = tc.err
					w := do(mux, http.MethodPost, "/simulation/start")
					So(w.Code, ShouldEqual, tc.status)
					body := decode(w)
					So(body["code"], ShouldEqual, tc.code)
					So(body["message"], ShouldContainSubstring, tc.err.Error())
				}
			})
		})
	})
}

func TestSimulationStopAndStatus(t *testing.T) {
	Convey("Given a control API with a running simulation", t, func() {
		ctrl := &mockController{status: simulation.Status{Enabled: true, Running: true, Local: true}}
		mux := newMux(ctrl)

		Convey("When a stop is posted", func() {
			w := do(mux, http.MethodPost, "/simulation/stop")

			Convey("Then it should be accepted and the flag cleared", func() {
				So(w.Code, ShouldEqual, http.StatusAccepted)
				So(decode(w)["status"], ShouldEqual, "stopping")
				So(ctrl.stops, ShouldEqual, 1)
				So(ctrl.status.Running, ShouldBeFalse)
			})
		})

		Convey("When the run state cannot be written", func() {
			ctrl.stopErr = simulation.ErrRunState
			w := do(mux, http.MethodPost, "/simulation/stop")

			Convey("Then the stop should report unavailable", func() {
				So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
				So(decode(w)["code"], ShouldEqual, "run_state_unavailable")
			})
		})

		Convey("When the status is requested", func() {
			w := do(mux, http.MethodGet, "/simulation/status")

			Convey("Then the status should be returned as JSON", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				body := decode(w)
				So(body["enabled"], ShouldEqual, true)
				So(body["running"], ShouldEqual, true)
				So(body["local"], ShouldEqual, true)
				So(body["loop"], ShouldNotBeNil)
			})
		})

		Convey("When the status cannot be read", func() {
			ctrl.statusErr = errors.New("service not started")
			w := do(mux, http.MethodGet, "/simulation/status")

			Convey("Then an internal error should be returned", func() {
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
			})
		})

		Convey("When stop is requested with GET", func() {
			w := do(mux, http.MethodGet, "/simulation/stop")

			Convey("Then it should be rejected", func() {
				So(w.Code, ShouldEqual, http.StatusMethodNotAllowed)
				So(ctrl.stops, ShouldEqual, 0)
			})
		})
	})
}

func TestHealthStatsAndMetrics(t *testing.T) {
	Convey("Given a control API", t, func() {
		mux := newMux(&mockController{})

		Convey("When /healthz is requested", func() {
			w := do(mux, http.MethodGet, "/healthz")

			Convey("Then it should report ok", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(decode(w)["status"], ShouldEqual, "ok")
			})
		})

		Convey("When /stats is requested", func() {
			w := do(mux, http.MethodGet, "/stats")

			Convey("Then the provider's stats should be returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				body := decode(w)
				So(body["started"], ShouldEqual, true)
				So(body["subjects"], ShouldEqual, float64(3))
			})
		})

		Convey("When /stats is posted", func() {
			w := do(mux, http.MethodPost, "/stats")

			Convey("Then it should be rejected", func() {
				So(w.Code, ShouldEqual, http.StatusMethodNotAllowed)
			})
		})

		Convey("When /metrics is scraped after some traffic", func() {
			metrics.RecordSamplePublished(3)
			do(mux, http.MethodGet, "/healthz")
			w := do(mux, http.MethodGet, "/metrics")

			Convey("Then the registry should be exposed", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				body := w.Body.String()
				So(strings.Contains(body, "samples_published_total"), ShouldBeTrue)
				So(strings.Contains(body, `endpoint="healthz"`), ShouldBeTrue)
			})
		})
	})
}
