package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/noah-isme/fieldsync-api/internal/models"
	"github.com/noah-isme/fieldsync-api/pkg/config"
)

type storeProber interface {
	PingContext(ctx context.Context) error
}

type writeProber interface {
	FreeProbe() error
}

type reviewCounter interface {
	CountByReview(ctx context.Context, reviewID string) (int, error)
}

// DeviceCapabilities probes hardware the fieldwork flows depend on. On the
// agent this is backed by the platform bridge; tests stub it.
type DeviceCapabilities interface {
	CameraAvailable(ctx context.Context) error
	MicrophoneAvailable(ctx context.Context) error
	LocationAvailable(ctx context.Context) error
}

// FreeSpaceFunc reports the free bytes on the volume holding the local store.
type FreeSpaceFunc func(path string) (int64, error)

// StatfsFreeSpace is the default probe.
func StatfsFreeSpace(path string) (int64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, fmt.Errorf("statfs %s: %w", path, err)
	}
	return int64(stat.Bavail) * int64(stat.Bsize), nil
}

// PreflightService runs the capability checks shown before fieldwork starts.
// A fail blocks the flow; warnings proceed after user acknowledgment.
type PreflightService struct {
	store      storeProber
	writer     writeProber
	checklists reviewCounter
	device     DeviceCapabilities
	freeSpace  FreeSpaceFunc
	storePath  string
	cfg        config.PreflightConfig
	logger     *zap.Logger
}

func NewPreflightService(
	store storeProber,
	writer writeProber,
	checklists reviewCounter,
	device DeviceCapabilities,
	freeSpace FreeSpaceFunc,
	storePath string,
	cfg config.PreflightConfig,
	logger *zap.Logger,
) *PreflightService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if freeSpace == nil {
		freeSpace = StatfsFreeSpace
	}
	return &PreflightService{
		store:      store,
		writer:     writer,
		checklists: checklists,
		device:     device,
		freeSpace:  freeSpace,
		storePath:  storePath,
		cfg:        cfg,
		logger:     logger,
	}
}

// Run executes every check for the given review. It always returns a full
// report; individual probe errors become failed checks, never a Run error.
func (s *PreflightService) Run(ctx context.Context, reviewID string) models.PreflightReport {
	report := models.PreflightReport{ReviewID: reviewID, CanProceed: true}

	report.Checks = append(report.Checks,
		s.checkLocalStore(ctx),
		s.checkFreeStorage(),
		s.checkCamera(ctx),
		s.checkMicrophone(ctx),
		s.checkGPS(ctx),
		s.checkReviewData(ctx, reviewID),
	)

	for _, check := range report.Checks {
		switch check.Result {
		case models.PreflightFail:
			report.CanProceed = false
		case models.PreflightWarning:
			report.NeedsAck = true
		}
	}

	s.logger.Info("preflight completed",
		zap.String("review_id", reviewID),
		zap.Bool("can_proceed", report.CanProceed),
		zap.Bool("needs_ack", report.NeedsAck))
	return report
}

func (s *PreflightService) checkLocalStore(ctx context.Context) models.PreflightCheck {
	check := models.PreflightCheck{Name: models.CheckLocalStore, Result: models.PreflightPass, RanAt: time.Now().UTC()}
	if err := s.store.PingContext(ctx); err != nil {
		check.Result = models.PreflightFail
		check.Detail = fmt.Sprintf("local store unavailable: %v", err)
		return check
	}
	if err := s.writer.FreeProbe(); err != nil {
		check.Result = models.PreflightFail
		check.Detail = fmt.Sprintf("device refuses writes: %v", err)
	}
	return check
}

func (s *PreflightService) checkFreeStorage() models.PreflightCheck {
	check := models.PreflightCheck{Name: models.CheckFreeStorage, Result: models.PreflightPass, RanAt: time.Now().UTC()}
	free, err := s.freeSpace(s.storePath)
	if err != nil {
		check.Result = models.PreflightWarning
		check.Detail = fmt.Sprintf("could not measure free space: %v", err)
		return check
	}
	switch {
	case s.cfg.MinFreeBytes > 0 && free < s.cfg.MinFreeBytes:
		check.Result = models.PreflightFail
		check.Detail = fmt.Sprintf("only %d MB free, captures will not fit", free/(1024*1024))
	case s.cfg.WarnFreeBytes > 0 && free < s.cfg.WarnFreeBytes:
		check.Result = models.PreflightWarning
		check.Detail = fmt.Sprintf("%d MB free, long visits may run out", free/(1024*1024))
	}
	return check
}

func (s *PreflightService) checkCamera(ctx context.Context) models.PreflightCheck {
	check := models.PreflightCheck{Name: models.CheckCamera, Result: models.PreflightPass, RanAt: time.Now().UTC()}
	if s.device == nil {
		check.Result = models.PreflightWarning
		check.Detail = "camera availability unknown on this device"
		return check
	}
	if err := s.device.CameraAvailable(ctx); err != nil {
		// Photos are optional; the visit can proceed without them.
		check.Result = models.PreflightWarning
		check.Detail = fmt.Sprintf("camera unavailable: %v", err)
	}
	return check
}

func (s *PreflightService) checkMicrophone(ctx context.Context) models.PreflightCheck {
	check := models.PreflightCheck{Name: models.CheckMicrophone, Result: models.PreflightPass, RanAt: time.Now().UTC()}
	if s.device == nil {
		check.Result = models.PreflightWarning
		check.Detail = "microphone availability unknown on this device"
		return check
	}
	if err := s.device.MicrophoneAvailable(ctx); err != nil {
		check.Result = models.PreflightWarning
		check.Detail = fmt.Sprintf("microphone unavailable: %v", err)
	}
	return check
}

func (s *PreflightService) checkGPS(ctx context.Context) models.PreflightCheck {
	check := models.PreflightCheck{Name: models.CheckGPS, Result: models.PreflightPass, RanAt: time.Now().UTC()}
	if s.device == nil {
		check.Result = models.PreflightWarning
		check.Detail = "location availability unknown on this device"
		return check
	}
	if err := s.device.LocationAvailable(ctx); err != nil {
		check.Result = models.PreflightWarning
		check.Detail = fmt.Sprintf("no location fix: %v", err)
	}
	return check
}

func (s *PreflightService) checkReviewData(ctx context.Context, reviewID string) models.PreflightCheck {
	check := models.PreflightCheck{Name: models.CheckReviewData, Result: models.PreflightPass, RanAt: time.Now().UTC()}
	n, err := s.checklists.CountByReview(ctx, reviewID)
	if err != nil {
		check.Result = models.PreflightFail
		check.Detail = fmt.Sprintf("could not read review data: %v", err)
		return check
	}
	if n == 0 {
		// Initialization must run while online before fieldwork starts.
		check.Result = models.PreflightFail
		check.Detail = "review checklist is not present locally, initialize it while online"
	}
	return check
}
