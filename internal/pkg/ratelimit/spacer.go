package ratelimit

import (
	"context"
	"sync"
	"time"
)

// SleepFunc 可被测试替换的等待函数。
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep 等待 d，ctx 结束时提前返回 ctx.Err()。
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Spacer 保证同一实例发出的两次请求之间至少间隔 interval。
//
// 上次请求时间保存在实例上，不同实例之间互不影响。
type Spacer struct {
	interval time.Duration
	now      func() time.Time
	sleep    SleepFunc

	mu   sync.Mutex
	last time.Time
}

// NewSpacer 创建请求间隔控制器。interval <= 0 表示不限制。
func NewSpacer(interval time.Duration) *Spacer {
	return &Spacer{
		interval: interval,
		now:      time.Now,
		sleep:    Sleep,
	}
}

// WithClock 替换时钟与等待函数（测试用）。
func (s *Spacer) WithClock(now func() time.Time, sleep SleepFunc) *Spacer {
	if now != nil {
		s.now = now
	}
	if sleep != nil {
		s.sleep = sleep
	}
	return s
}

// Wait 在距上次请求不足 interval 时等待剩余时间，然后记录本次请求时间。
//
// 返回实际等待的时长。
func (s *Spacer) Wait(ctx context.Context) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var waited time.Duration
	if s.interval > 0 && !s.last.IsZero() {
		elapsed := s.now().Sub(s.last)
		if elapsed < s.interval {
			waited = s.interval - elapsed
			if err := s.sleep(ctx, waited); err != nil {
				return 0, err
			}
		}
	}
	s.last = s.now()
	return waited, nil
}
