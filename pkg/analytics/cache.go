package analytics

import (
	"fmt"
	"time"

	"github.com/hyperforge-labs/forgelake/pkg/sim"
)

const riskCacheKey = "risk"

func oeeCacheKey(from, to time.Time) string {
	return fmt.Sprintf("oee:%s:%s", sim.DateKey(from), sim.DateKey(to))
}

func fleetCacheKey(window sim.Window) string {
	return fmt.Sprintf("fleet:%s:%s", sim.HourKey(window.Start), sim.HourKey(window.End))
}

func costCacheKey(from, to time.Time) string {
	return fmt.Sprintf("cost:%s:%s", sim.DateKey(from), sim.DateKey(to))
}

func (s *Service) getCachedOEE(from, to time.Time) []LineOEE {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	cached := s.cache.Get(oeeCacheKey(from, to))
	if cached == nil {
		return nil
	}
	return cached.Value().([]LineOEE)
}

func (s *Service) setCachedOEE(from, to time.Time, lines []LineOEE) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.cache.Set(oeeCacheKey(from, to), lines, s.cfg.SummaryCacheTTL)
}

func (s *Service) getCachedRisk() []AssetRisk {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	cached := s.cache.Get(riskCacheKey)
	if cached == nil {
		return nil
	}
	return cached.Value().([]AssetRisk)
}

func (s *Service) setCachedRisk(risks []AssetRisk) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.cache.Set(riskCacheKey, risks, s.cfg.SummaryCacheTTL)
}

func (s *Service) getCachedFleet(window sim.Window) []AssetHealth {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	cached := s.cache.Get(fleetCacheKey(window))
	if cached == nil {
		return nil
	}
	return cached.Value().([]AssetHealth)
}

func (s *Service) setCachedFleet(window sim.Window, assets []AssetHealth) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.cache.Set(fleetCacheKey(window), assets, s.cfg.SummaryCacheTTL)
}

func (s *Service) getCachedCost(from, to time.Time) []CostByType {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	cached := s.cache.Get(costCacheKey(from, to))
	if cached == nil {
		return nil
	}
	return cached.Value().([]CostByType)
}

func (s *Service) setCachedCost(from, to time.Time, costs []CostByType) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.cache.Set(costCacheKey(from, to), costs, s.cfg.SummaryCacheTTL)
}
