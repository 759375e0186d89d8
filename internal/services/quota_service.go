package services

import (
	"context"
)

// UsageSource reports a user's stored bytes.
type UsageSource interface {
	SumSizeByUser(ctx context.Context, userID string) (int64, error)
}

// QuotaUsage is the caller-facing view of a user's storage.
type QuotaUsage struct {
	UsedBytes      int64 `json:"usedBytes"`
	QuotaBytes     int64 `json:"quotaBytes"`
	RemainingBytes int64 `json:"remainingBytes"`
}

// QuotaService admits uploads while a user's stored bytes stay below a fixed cap.
//
// The check reads the live total and is not atomic with the insert that follows it:
// concurrent uploads by one user can both pass against the same total and jointly
// exceed the cap. The quota is a soft usage limit, so this is accepted.
type QuotaService struct {
	usage      UsageSource
	quotaBytes int64
}

func NewQuotaService(usage UsageSource, quotaBytes int64) *QuotaService {
	return &QuotaService{usage: usage, quotaBytes: quotaBytes}
}

func (s *QuotaService) QuotaBytes() int64 {
	return s.quotaBytes
}

func (s *QuotaService) Usage(ctx context.Context, userID string) (*QuotaUsage, error) {
	used, err := s.usage.SumSizeByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	remaining := s.quotaBytes - used
	if remaining < 0 {
		remaining = 0
	}
	return &QuotaUsage{UsedBytes: used, QuotaBytes: s.quotaBytes, RemainingBytes: remaining}, nil
}

// HasAvailableQuota reports whether userID's stored bytes are strictly below the cap.
func (s *QuotaService) HasAvailableQuota(ctx context.Context, userID string) (bool, error) {
	_, ok, err := s.admit(ctx, userID)
	return ok, err
}

// Check returns a QuotaExceededError when the user may not store another file.
func (s *QuotaService) Check(ctx context.Context, userID string) error {
	used, ok, err := s.admit(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return &QuotaExceededError{UserID: userID, UsedBytes: used, QuotaBytes: s.quotaBytes}
	}
	return nil
}

// admit reads the live total once and applies the cap.
func (s *QuotaService) admit(ctx context.Context, userID string) (used int64, ok bool, err error) {
	used, err = s.usage.SumSizeByUser(ctx, userID)
	if err != nil {
		return 0, false, err
	}
	return used, used < s.quotaBytes, nil
}
