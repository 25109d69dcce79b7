package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/fieldsync-api/internal/models"
	"github.com/noah-isme/fieldsync-api/pkg/config"
)

type stubProber struct{ pingErr, probeErr error }

func (s *stubProber) PingContext(ctx context.Context) error { return s.pingErr }
func (s *stubProber) FreeProbe() error                      { return s.probeErr }

type stubCounter struct {
	count int
	err   error
}

func (s *stubCounter) CountByReview(ctx context.Context, reviewID string) (int, error) {
	return s.count, s.err
}

type stubDevice struct{ cameraErr, micErr, gpsErr error }

func (s *stubDevice) CameraAvailable(ctx context.Context) error     { return s.cameraErr }
func (s *stubDevice) MicrophoneAvailable(ctx context.Context) error { return s.micErr }
func (s *stubDevice) LocationAvailable(ctx context.Context) error   { return s.gpsErr }

func preflightFixture(prober *stubProber, counter *stubCounter, device DeviceCapabilities, free int64) *PreflightService {
	cfg := config.PreflightConfig{MinFreeBytes: 100 << 20, WarnFreeBytes: 500 << 20}
	freeSpace := func(string) (int64, error) { return free, nil }
	return NewPreflightService(prober, prober, counter, device, freeSpace, "/tmp", cfg, zap.NewNop())
}

func checkByName(t *testing.T, report models.PreflightReport, name models.PreflightCheckName) models.PreflightCheck {
	t.Helper()
	for _, c := range report.Checks {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("check %s missing from report", name)
	return models.PreflightCheck{}
}

func TestPreflightAllGreen(t *testing.T) {
	svc := preflightFixture(&stubProber{}, &stubCounter{count: 12}, &stubDevice{}, 1<<30)

	report := svc.Run(context.Background(), "rev-1")
	require.Len(t, report.Checks, 6)
	assert.True(t, report.CanProceed)
	assert.False(t, report.NeedsAck)
	for _, c := range report.Checks {
		assert.Equal(t, models.PreflightPass, c.Result, string(c.Name))
	}
}

func TestPreflightLocalStoreFailureBlocks(t *testing.T) {
	svc := preflightFixture(&stubProber{pingErr: errors.New("database is locked")}, &stubCounter{count: 3}, &stubDevice{}, 1<<30)

	report := svc.Run(context.Background(), "rev-1")
	assert.False(t, report.CanProceed)
	c := checkByName(t, report, models.CheckLocalStore)
	assert.Equal(t, models.PreflightFail, c.Result)
	assert.Contains(t, c.Detail, "locked")
}

func TestPreflightLowStorageWarnsThenFails(t *testing.T) {
	svc := preflightFixture(&stubProber{}, &stubCounter{count: 3}, &stubDevice{}, 300<<20)
	report := svc.Run(context.Background(), "rev-1")
	assert.True(t, report.CanProceed)
	assert.True(t, report.NeedsAck)
	assert.Equal(t, models.PreflightWarning, checkByName(t, report, models.CheckFreeStorage).Result)

	svc = preflightFixture(&stubProber{}, &stubCounter{count: 3}, &stubDevice{}, 50<<20)
	report = svc.Run(context.Background(), "rev-1")
	assert.False(t, report.CanProceed)
	assert.Equal(t, models.PreflightFail, checkByName(t, report, models.CheckFreeStorage).Result)
}

func TestPreflightMissingHardwareWarnsOnly(t *testing.T) {
	device := &stubDevice{cameraErr: errors.New("no camera"), gpsErr: errors.New("no fix")}
	svc := preflightFixture(&stubProber{}, &stubCounter{count: 3}, device, 1<<30)

	report := svc.Run(context.Background(), "rev-1")
	assert.True(t, report.CanProceed)
	assert.True(t, report.NeedsAck)
	assert.Equal(t, models.PreflightWarning, checkByName(t, report, models.CheckCamera).Result)
	assert.Equal(t, models.PreflightWarning, checkByName(t, report, models.CheckGPS).Result)
	assert.Equal(t, models.PreflightPass, checkByName(t, report, models.CheckMicrophone).Result)
}

func TestPreflightMissingReviewDataBlocks(t *testing.T) {
	svc := preflightFixture(&stubProber{}, &stubCounter{count: 0}, &stubDevice{}, 1<<30)

	report := svc.Run(context.Background(), "rev-1")
	assert.False(t, report.CanProceed)
	c := checkByName(t, report, models.CheckReviewData)
	assert.Equal(t, models.PreflightFail, c.Result)
	assert.Contains(t, c.Detail, "initialize")
}
