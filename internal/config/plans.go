// SPDX-License-Identifier: MIT

package config

import (
	"fmt"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/coachscribe/coachscribe/internal/domain/model"
	"github.com/coachscribe/coachscribe/internal/log"
)

// PlanRegistry serves per-plan limit snapshots. A single admission
// decision sees one immutable snapshot; file reloads swap the whole
// table atomically.
type PlanRegistry struct {
	mu    sync.RWMutex
	plans map[model.Plan]model.PlanLimits
}

// DefaultPlans mirrors the shipped plan matrix. -1 means unlimited.
func DefaultPlans() map[model.Plan]model.PlanLimits {
	return map[model.Plan]model.PlanLimits{
		model.PlanFree: {
			MaxSessionsPerMonth: -1,
			MaxMinutesPerMonth:  120,
			MaxTranscriptions:   -1,
			MaxFileSizeMB:       60,
			MaxExportsPerMonth:  10,
			MaxConcurrentJobs:   1,
			RetentionDays:       30,
			ExportFormats:       []string{"json", "txt"},
		},
		model.PlanStudent: {
			MaxSessionsPerMonth: -1,
			MaxMinutesPerMonth:  600,
			MaxTranscriptions:   -1,
			MaxFileSizeMB:       120,
			MaxExportsPerMonth:  50,
			MaxConcurrentJobs:   2,
			RetentionDays:       180,
			ExportFormats:       []string{"json", "txt", "vtt", "srt"},
		},
		model.PlanPro: {
			MaxSessionsPerMonth: -1,
			MaxMinutesPerMonth:  1200,
			MaxTranscriptions:   -1,
			MaxFileSizeMB:       200,
			MaxExportsPerMonth:  200,
			MaxConcurrentJobs:   3,
			RetentionDays:       365,
			ExportFormats:       []string{"json", "txt", "vtt", "srt", "xlsx"},
			SpeakerRelabeling:   true,
		},
		model.PlanEnterprise: {
			MaxSessionsPerMonth: -1,
			MaxMinutesPerMonth:  -1,
			MaxTranscriptions:   -1,
			MaxFileSizeMB:       500,
			MaxExportsPerMonth:  -1,
			MaxConcurrentJobs:   10,
			RetentionDays:       -1,
			ExportFormats:       []string{"json", "txt", "vtt", "srt", "xlsx"},
			PriorityProcessing:  true,
			SpeakerRelabeling:   true,
		},
		model.PlanCoachingSchool: {
			MaxSessionsPerMonth: -1,
			MaxMinutesPerMonth:  6000,
			MaxTranscriptions:   -1,
			MaxFileSizeMB:       500,
			MaxExportsPerMonth:  -1,
			MaxConcurrentJobs:   5,
			RetentionDays:       730,
			ExportFormats:       []string{"json", "txt", "vtt", "srt", "xlsx"},
			PriorityProcessing:  true,
			SpeakerRelabeling:   true,
		},
	}
}

// NewPlanRegistry returns a registry seeded with the default matrix,
// optionally overridden from a YAML file.
func NewPlanRegistry(planFile string) (*PlanRegistry, error) {
	r := &PlanRegistry{plans: DefaultPlans()}
	if planFile == "" {
		return r, nil
	}
	if err := r.loadFile(planFile); err != nil {
		return nil, err
	}
	return r, nil
}

// Limits returns the limit snapshot for a plan. Unknown plans resolve
// to FREE, the most restrictive tier.
func (r *PlanRegistry) Limits(plan model.Plan) model.PlanLimits {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if limits, ok := r.plans[plan]; ok {
		return limits
	}
	return r.plans[model.PlanFree]
}

func (r *PlanRegistry) loadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("plan file: %w", err)
	}
	var parsed map[model.Plan]model.PlanLimits
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return fmt.Errorf("plan file %s: %w", path, err)
	}

	merged := DefaultPlans()
	for plan, limits := range parsed {
		merged[plan] = limits
	}

	r.mu.Lock()
	r.plans = merged
	r.mu.Unlock()
	return nil
}

// Watch reloads the plan file on changes until stop is closed.
// Reload failures keep the last good table.
func (r *PlanRegistry) Watch(path string, stop <-chan struct{}) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(path); err != nil {
		_ = watcher.Close()
		return err
	}

	logger := log.WithComponent("plans")
	go func() {
		defer func() { _ = watcher.Close() }()
		for {
			select {
			case <-stop:
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if err := r.loadFile(path); err != nil {
					logger.Error().Err(err).Msg("plan reload failed, keeping previous limits")
					continue
				}
				logger.Info().Str("path", path).Msg("plan limits reloaded")
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn().Err(err).Msg("plan watcher error")
			}
		}
	}()
	return nil
}
