package storage

// StartHealthMonitoring starts periodic health checks
func (s *BadgerStorage) StartHealthMonitoring() {
	s.healthMonitor.Start()
}

// StopHealthMonitoring stops periodic health checks
func (s *BadgerStorage) StopHealthMonitoring() {
	s.healthMonitor.Stop()
}

// GetHealthStatus returns the per-component health summary
func (s *BadgerStorage) GetHealthStatus() map[string]interface{} {
	return s.healthMonitor.GetHealthSummary()
}

// GetOverallHealth returns the combined health status
func (s *BadgerStorage) GetOverallHealth() HealthStatus {
	return s.healthMonitor.GetOverallHealth()
}

// IsHealthy returns true if every component is healthy
func (s *BadgerStorage) IsHealthy() bool {
	return s.GetOverallHealth() == HealthStatusHealthy
}
