package service

import (
	"testing"
	"time"
)

func TestNewSchedulerServiceDefaultsIntervals(t *testing.T) {
	s := NewSchedulerService(nil, nil, SchedulerConfig{})

	want := DefaultSchedulerConfig()
	if s.cfg != want {
		t.Errorf("cfg = %+v, want %+v", s.cfg, want)
	}
}

func TestNewSchedulerServiceKeepsExplicitIntervals(t *testing.T) {
	cfg := SchedulerConfig{
		PollInterval:  time.Second,
		IdleInterval:  5 * time.Second,
		ErrorInterval: 3 * time.Second,
	}
	s := NewSchedulerService(nil, nil, cfg)
	if s.cfg != cfg {
		t.Errorf("cfg = %+v, want %+v", s.cfg, cfg)
	}
}
