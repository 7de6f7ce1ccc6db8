// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package metrics_test

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/juju/errors"
	jc "github.com/juju/testing/checkers"
	"github.com/prometheus/client_golang/prometheus/testutil"
	gc "gopkg.in/check.v1"

	"github.com/juju/charm-virtual-accelerator/internal/lifecycle"
	"github.com/juju/charm-virtual-accelerator/internal/metrics"
)

type metricsSuite struct{}

var _ = gc.Suite(&metricsSuite{})

var _ lifecycle.Recorder = (*metrics.Collector)(nil)

func (s *metricsSuite) TestHandlerRuns(c *gc.C) {
	clk := testclock.NewClock(time.Unix(1700000000, 0))
	collector := metrics.NewCollector(clk)

	collector.ObserveStep("install", "install-prerequisites", 3*time.Second, nil)
	collector.ObserveStep("install", "install-credentials", time.Second, errors.New("missing"))
	collector.ObserveHandler("install", 4*time.Second, errors.New("missing"))
	collector.ObserveHandler("install", 40*time.Second, nil)

	expected := `
# HELP va_charm_hook_handler_runs The number of handler runs in the last hook.
# TYPE va_charm_hook_handler_runs gauge
va_charm_hook_handler_runs{handler="install",outcome="failure"} 1
va_charm_hook_handler_runs{handler="install",outcome="success"} 1
# HELP va_charm_last_handler_run_timestamp_seconds When a handler last completed or failed.
# TYPE va_charm_last_handler_run_timestamp_seconds gauge
va_charm_last_handler_run_timestamp_seconds 1.7e+09
`
	err := testutil.CollectAndCompare(collector, strings.NewReader(expected),
		"va_charm_hook_handler_runs", "va_charm_last_handler_run_timestamp_seconds")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(testutil.CollectAndCount(collector, "va_charm_step_duration_seconds"), gc.Equals, 2)
}

func (s *metricsSuite) TestWriteTextfile(c *gc.C) {
	collector := metrics.NewCollector(testclock.NewClock(time.Unix(0, 0)))
	collector.ObserveHandler("restart", time.Second, nil)

	path := filepath.Join(c.MkDir(), "va_charm.prom")
	c.Assert(metrics.WriteTextfile(path, collector), jc.ErrorIsNil)

	data, err := os.ReadFile(path)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(string(data), jc.Contains, `va_charm_hook_handler_runs{handler="restart",outcome="success"} 1`)
}

func (s *metricsSuite) TestWriteTextfileReplacesLastHook(c *gc.C) {
	path := filepath.Join(c.MkDir(), "va_charm.prom")

	first := metrics.NewCollector(testclock.NewClock(time.Unix(0, 0)))
	first.ObserveHandler("install", time.Second, nil)
	first.ObserveHandler("install", time.Second, nil)
	c.Assert(metrics.WriteTextfile(path, first), jc.ErrorIsNil)

	second := metrics.NewCollector(testclock.NewClock(time.Unix(0, 0)))
	second.ObserveHandler("restart", time.Second, nil)
	c.Assert(metrics.WriteTextfile(path, second), jc.ErrorIsNil)

	data, err := os.ReadFile(path)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(string(data), jc.Contains, "# TYPE va_charm_hook_handler_runs gauge")
	c.Check(string(data), jc.Contains, `va_charm_hook_handler_runs{handler="restart",outcome="success"} 1`)
	c.Check(strings.Contains(string(data), `handler="install"`), jc.IsFalse)
}
