package services

// Tick advances the duration timer of the current session by one step.
func (c *SignalingClient) Tick() bool {
	c.mu.Lock()
	gen := c.generation
	c.mu.Unlock()
	return c.tick(gen)
}

// CachedFields is the number of fields held by the service.
func (s *FieldService) CachedFields() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.fields)
}
