// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package lifecycle_test

import (
	"context"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/juju/errors"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/juju/charm-virtual-accelerator/core/status"
	"github.com/juju/charm-virtual-accelerator/internal/lifecycle"
)

type executorSuite struct {
	testing.IsolationSuite

	log    *stepLog
	status *fakeStatus
	clock  *testclock.Clock
}

var _ = gc.Suite(&executorSuite{})

func (s *executorSuite) SetUpTest(c *gc.C) {
	s.IsolationSuite.SetUpTest(c)
	s.log = newStepLog()
	s.status = &fakeStatus{}
	s.clock = testclock.NewClock(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
}

type fakeRecorder struct {
	testing.Stub
}

func (r *fakeRecorder) ObserveStep(handler, step string, _ time.Duration, err error) {
	r.AddCall("ObserveStep", handler, step, err != nil)
}

func (r *fakeRecorder) ObserveHandler(handler string, _ time.Duration, err error) {
	r.AddCall("ObserveHandler", handler, err != nil)
}

func (s *executorSuite) newExecutor(c *gc.C, timeout time.Duration, recorder lifecycle.Recorder) *lifecycle.Executor {
	executor, err := lifecycle.NewExecutor(lifecycle.ExecutorConfig{
		Status:   s.status,
		Clock:    s.clock,
		Timeout:  timeout,
		Recorder: recorder,
	})
	c.Assert(err, jc.ErrorIsNil)
	return executor
}

func (s *executorSuite) TestValidate(c *gc.C) {
	for i, test := range []struct {
		config lifecycle.ExecutorConfig
		err    string
	}{{
		config: lifecycle.ExecutorConfig{Clock: s.clock},
		err:    "nil Status not valid",
	}, {
		config: lifecycle.ExecutorConfig{Status: s.status},
		err:    "nil Clock not valid",
	}, {
		config: lifecycle.ExecutorConfig{Status: s.status, Clock: s.clock, Timeout: -time.Second},
		err:    "negative Timeout not valid",
	}} {
		c.Logf("test %d", i)
		_, err := lifecycle.NewExecutor(test.config)
		c.Check(err, gc.ErrorMatches, test.err)
		c.Check(err, jc.Satisfies, errors.IsNotValid)
	}
}

func (s *executorSuite) TestRunInOrder(c *gc.C) {
	recorder := &fakeRecorder{}
	executor := s.newExecutor(c, 0, recorder)
	h := lifecycle.Handler{Name: "install", Steps: s.log.steps(installSteps...)}

	err := executor.Run(context.Background(), h)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(s.log.reset(), jc.DeepEquals, installSteps)

	var messages []string
	for _, info := range s.status.history {
		c.Check(info.Status, gc.Equals, status.Maintenance)
		messages = append(messages, info.Message)
	}
	c.Check(messages, jc.DeepEquals, []string{
		"Running install-prerequisites",
		"Running delete-default-network",
		"Running install-credentials",
		"Running install-product",
		"Running install-license",
		"Running install-extensions",
	})

	calls := recorder.Calls()
	c.Assert(calls, gc.HasLen, len(installSteps)+1)
	c.Check(calls[len(calls)-1], jc.DeepEquals, testing.StubCall{
		FuncName: "ObserveHandler",
		Args:     []interface{}{"install", false},
	})
}

func (s *executorSuite) TestStopsAtFirstFailure(c *gc.C) {
	recorder := &fakeRecorder{}
	executor := s.newExecutor(c, 0, recorder)
	s.log.failWith("install-credentials", errors.Annotate(lifecycle.ErrResourceMissing, `"credentials"`))
	h := lifecycle.Handler{Name: "install", Steps: s.log.steps(installSteps...)}

	err := executor.Run(context.Background(), h)
	c.Assert(err, gc.ErrorMatches, `handler "install" step 2 \(install-credentials\): "credentials": resource missing`)
	c.Check(s.log.reset(), jc.DeepEquals, installSteps[:3])

	var stepErr *lifecycle.StepError
	c.Assert(errors.As(err, &stepErr), jc.IsTrue)
	c.Check(stepErr.Handler, gc.Equals, "install")
	c.Check(stepErr.Index, gc.Equals, 2)
	c.Check(stepErr.Step, gc.Equals, "install-credentials")
	c.Check(errors.Is(err, lifecycle.ErrStepFailed), jc.IsTrue)
	c.Check(errors.Is(err, lifecycle.ErrResourceMissing), jc.IsTrue)

	recorder.CheckCall(c, 2, "ObserveStep", "install", "install-credentials", true)
	recorder.CheckCall(c, 3, "ObserveHandler", "install", true)
}

func (s *executorSuite) TestRetryStartsFromFirstStep(c *gc.C) {
	executor := s.newExecutor(c, 0, nil)
	s.log.failWith("install-product", errors.New("apt is locked"))
	h := lifecycle.Handler{Name: "install", Steps: s.log.steps(installSteps...)}

	err := executor.Run(context.Background(), h)
	c.Assert(err, jc.Satisfies, isStepError)
	c.Check(s.log.reset(), jc.DeepEquals, installSteps[:4])

	s.log.failWith("install-product", nil)
	err = executor.Run(context.Background(), h)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(s.log.reset(), jc.DeepEquals, installSteps)
}

func (s *executorSuite) TestStepWithoutMessageLeavesStatus(c *gc.C) {
	executor := s.newExecutor(c, 0, nil)
	h := lifecycle.Handler{Name: "quiet", Steps: []lifecycle.Step{{
		Name: "noop",
		Run:  func(context.Context) error { return nil },
	}}}
	err := executor.Run(context.Background(), h)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(s.status.history, gc.HasLen, 0)
}

func (s *executorSuite) TestWatchdog(c *gc.C) {
	executor := s.newExecutor(c, time.Minute, nil)
	stopped := make(chan struct{})
	h := lifecycle.Handler{Name: "restart", Steps: []lifecycle.Step{{
		Name:    "restart-product",
		Message: "Restarting",
		Run: func(ctx context.Context) error {
			<-ctx.Done()
			close(stopped)
			return ctx.Err()
		},
	}}}

	result := make(chan error, 1)
	go func() {
		result <- executor.Run(context.Background(), h)
	}()
	err := s.clock.WaitAdvance(time.Minute, testing.LongWait, 1)
	c.Assert(err, jc.ErrorIsNil)

	select {
	case err := <-result:
		c.Check(err, gc.ErrorMatches, `handler "restart" step 0 \(restart-product\): "restart-product" after 1m0s: step timed out`)
		c.Check(errors.Is(err, lifecycle.ErrStepTimeout), jc.IsTrue)
	case <-time.After(testing.LongWait):
		c.Fatalf("timed out waiting for executor")
	}

	select {
	case <-stopped:
	case <-time.After(testing.LongWait):
		c.Fatalf("step context was not cancelled")
	}
}

func (s *executorSuite) TestWatchdogNotTriggered(c *gc.C) {
	executor := s.newExecutor(c, time.Minute, nil)
	h := lifecycle.Handler{Name: "configure", Steps: s.log.steps("render-config")}
	err := executor.Run(context.Background(), h)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(s.log.reset(), jc.DeepEquals, []string{"render-config"})
}
